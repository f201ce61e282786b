package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultedConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaultedConfig()

	assert.Equal(t, "shopmargin-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "shopmargin.sync.outcomes", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.RunTimeout)
	assert.Equal(t, 250, cfg.Shopify.PageSize)
	assert.Equal(t, "2025-10", cfg.Shopify.APIVersion)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.App.Port = "9090"
	cfg.Scheduler.Workers = 8
	cfg.Shopify.PageSize = 50
	applyDefaults(cfg)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 50, cfg.Shopify.PageSize)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "idle conns exceed open conns",
			mutate:  func(c *Config) { c.Database.MaxIdleConns = 50 },
			wantErr: "max_idle_conns",
		},
		{
			name:    "page size above API limit",
			mutate:  func(c *Config) { c.Shopify.PageSize = 500 },
			wantErr: "page_size",
		},
		{
			name:    "production requires password",
			mutate:  func(c *Config) { c.App.Env = "production"; c.Database.SSLMode = "require" },
			wantErr: "password",
		},
		{
			name: "production rejects sslmode disable",
			mutate: func(c *Config) {
				c.App.Env = "production"
				c.Database.Password = "secret"
			},
			wantErr: "sslmode",
		},
		{
			name: "production with password and ssl",
			mutate: func(c *Config) {
				c.App.Env = "production"
				c.Database.Password = "secret"
				c.Database.SSLMode = "require"
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultedConfig()
			tc.mutate(cfg)
			err := cfg.validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDSNEscapesCredentials(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "app user",
		Password: "p@ss/word",
		DBName:   "shopmargin",
		SSLMode:  "require",
	}

	dsn := db.DSN()
	assert.True(t, strings.HasPrefix(dsn, "postgres://"))
	assert.Contains(t, dsn, "app%20user")
	assert.Contains(t, dsn, "p%40ss%2Fword")
	assert.Contains(t, dsn, "db.internal:5432/shopmargin")
	assert.Contains(t, dsn, "sslmode=require")
}
