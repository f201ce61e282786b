package event

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// Recorder persists a terminal sync run and its outcome events in one
// transaction. The events land in the outbox, not on the broker: if the
// commit succeeds the events will eventually be delivered, and if it rolls
// back neither the run state nor the events exist. This is the write side
// of the at-least-once guarantee.
type Recorder struct {
	db         *gorm.DB
	outbox     *GormOutboxRepository
	serializer *EventSerializer
}

// NewRecorder creates a transactional run recorder
func NewRecorder(db *gorm.DB, outbox *GormOutboxRepository, serializer *EventSerializer) *Recorder {
	return &Recorder{
		db:         db,
		outbox:     outbox,
		serializer: serializer,
	}
}

// SaveRunWithEvents writes the run and enqueues its events atomically
func (r *Recorder) SaveRunWithEvents(ctx context.Context, run *sync.Run, events ...shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}

		for _, ev := range events {
			payload, err := r.serializer.Serialize(ev)
			if err != nil {
				return err
			}
			entry := shared.NewOutboxEntry(ev.MerchantID(), ev, payload)
			if err := r.outbox.WithTx(tx).Save(ctx, entry); err != nil {
				return fmt.Errorf("save outbox entry: %w", err)
			}
		}
		return nil
	})
}
