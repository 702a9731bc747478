package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// InvalidateAll is delivered on the invalidation channel when a notification
// payload does not name a product line, telling the cache to drop everything.
const InvalidateAll int64 = 0

// CatalogEvent records a catalog mutation for a product line, stored in the
// catalog_events table and fanned out over LISTEN/NOTIFY.
type CatalogEvent struct {
	EventID   int64           `json:"event_id"`
	LineID    int64           `json:"line_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PublishCatalogEvent inserts a catalog event and sends a PostgreSQL NOTIFY
// on the configured channel within a single transaction.
func (r *PostgresRepository) PublishCatalogEvent(ctx context.Context, event CatalogEvent) (CatalogEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return CatalogEvent{}, fmt.Errorf("begin publish event tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var created CatalogEvent
	if err := tx.QueryRow(ctx, `
		INSERT INTO catalog_events (line_id, event_type, payload)
		VALUES ($1, $2, $3)
		RETURNING event_id, line_id, event_type, payload, created_at
	`,
		event.LineID,
		event.EventType,
		ensureJSON(event.Payload, "{}"),
	).Scan(
		&created.EventID,
		&created.LineID,
		&created.EventType,
		&created.Payload,
		&created.CreatedAt,
	); err != nil {
		return CatalogEvent{}, fmt.Errorf("insert catalog event: %w", err)
	}

	notifyPayload, err := marshalNotifyPayload(created)
	if err != nil {
		return CatalogEvent{}, fmt.Errorf("marshal notify payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, r.notifyChannel, notifyPayload); err != nil {
		return CatalogEvent{}, fmt.Errorf("notify catalog event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CatalogEvent{}, fmt.Errorf("commit publish event tx: %w", err)
	}

	return created, nil
}

// SubscribeCatalogInvalidation returns a channel that receives the affected
// product line id whenever a catalog event notification arrives on the
// PostgreSQL LISTEN channel, or [InvalidateAll] when the payload does not
// identify a line. The channel is closed when ctx ends.
func (r *PostgresRepository) SubscribeCatalogInvalidation(ctx context.Context) (<-chan int64, error) {
	invalidations := make(chan int64, 1)

	go r.runCatalogInvalidationListener(ctx, invalidations)

	return invalidations, nil
}

func (r *PostgresRepository) runCatalogInvalidationListener(ctx context.Context, invalidations chan int64) {
	defer close(invalidations)

	for {
		err := r.listenForCatalogInvalidation(ctx, invalidations)
		if err == nil || ctx.Err() != nil {
			return
		}

		retryTimer := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			retryTimer.Stop()
			return
		case <-retryTimer.C:
		}
	}
}

func (r *PostgresRepository) listenForCatalogInvalidation(ctx context.Context, invalidations chan int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, listenStatement(r.notifyChannel)); err != nil {
		return fmt.Errorf("listen on %q: %w", r.notifyChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for catalog event notification: %w", err)
		}

		deliverInvalidation(invalidations, parseNotifyLineID(notification.Payload))
	}
}

// deliverInvalidation hands a line id to a slow subscriber without losing
// information. When the buffer already holds a different line's id the two
// signals collapse into [InvalidateAll]; a same-line duplicate is dropped
// as-is. The final send never blocks because the listener goroutine is the
// channel's only sender, so the drained slot stays free.
func deliverInvalidation(invalidations chan int64, lineID int64) {
	select {
	case invalidations <- lineID:
		return
	default:
	}

	select {
	case pending := <-invalidations:
		if pending != lineID {
			lineID = InvalidateAll
		}
	default:
	}

	invalidations <- lineID
}

func marshalNotifyPayload(event CatalogEvent) (string, error) {
	serialized, err := json.Marshal(struct {
		LineID    int64  `json:"line_id"`
		EventType string `json:"event_type"`
	}{
		LineID:    event.LineID,
		EventType: event.EventType,
	})
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}

// parseNotifyLineID extracts the line id from a notification payload. A
// payload that cannot be parsed degrades to a flush-everything signal rather
// than a dropped invalidation.
func parseNotifyLineID(payload string) int64 {
	var message struct {
		LineID int64 `json:"line_id"`
	}
	if err := json.Unmarshal([]byte(payload), &message); err != nil {
		return InvalidateAll
	}
	return message.LineID
}

func ensureJSON(input json.RawMessage, fallback string) json.RawMessage {
	if len(input) == 0 {
		return json.RawMessage(fallback)
	}
	return input
}
