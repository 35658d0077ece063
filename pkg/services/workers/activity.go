package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"datacatalog/pkg/dictization"
	"datacatalog/pkg/model"
	"datacatalog/pkg/shared"
	"datacatalog/pkg/store"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// ActivityWorker records activity events into the activity table and
// drops cached dataset counts when a package changes.
type ActivityWorker struct {
	*BaseWorker
	db     *sql.DB
	counts *dictization.CountsCache
}

func NewActivityWorker(nc *nats.Conn, js nats.JetStreamContext, db *sql.DB, counts *dictization.CountsCache) *ActivityWorker {
	return &ActivityWorker{
		BaseWorker: NewBaseWorker(
			"ActivityWorker",
			nc,
			js,
			shared.StreamActivity,
			shared.ConsumerActivityRecorder,
			shared.SubjectActivityAll,
		),
		db:     db,
		counts: counts,
	}
}

func (w *ActivityWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, w.handleMessage)
}

func (w *ActivityWorker) handleMessage(ctx context.Context, msg *nats.Msg) error {
	var ev shared.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		// Redelivery cannot fix a malformed payload.
		log.Error("Dropping undecodable activity", "subject", msg.Subject, "err", err)
		return nil
	}
	return w.Record(ctx, &ev)
}

// Record persists ev as an activity row. Recording the same event id twice
// is a no-op.
func (w *ActivityWorker) Record(ctx context.Context, ev *shared.Event) error {
	if ev.ID == "" || ev.ObjectID == "" {
		log.Warn("Dropping incomplete activity", "id", ev.ID, "type", ev.Type)
		return nil
	}

	sess := store.NewSession(w.db)
	defer sess.Close()

	a := &model.Activity{
		ID:           ev.ID,
		UserID:       ev.UserID,
		ObjectID:     ev.ObjectID,
		ActivityType: ev.Type,
		Timestamp:    ev.Timestamp.UTC(),
		Data:         ev.Data,
	}
	if err := sess.CreateActivity(ctx, a); err != nil {
		_ = sess.Rollback()
		return fmt.Errorf("failed to record activity %s: %w", ev.ID, err)
	}
	if err := sess.Commit(); err != nil {
		return fmt.Errorf("failed to commit activity %s: %w", ev.ID, err)
	}

	log.Debug("Recorded activity", "id", ev.ID, "type", ev.Type, "object", ev.ObjectID)

	if w.counts != nil && shared.ActivityObjectKind(ev.Type) == "package" {
		if err := w.counts.Invalidate(ctx); err != nil {
			log.Warn("Failed to invalidate dataset counts", "err", err)
		}
	}
	return nil
}
