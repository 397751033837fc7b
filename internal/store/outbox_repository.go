package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// maxOutboxErrorBytes bounds last_error so one noisy broker error cannot bloat the row.
const maxOutboxErrorBytes = 2000

// EnqueueEvent stores the payload as JSON for later publication by the dispatcher.
func (q *queries) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

// ClaimOutboxMessages leases up to limit due messages to the caller, oldest
// first. A message whose lease has run out is handed out again, so a crashed
// dispatcher never strands events.
func (s *PostgresStore) ClaimOutboxMessages(ctx context.Context, limit int, lease time.Duration) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM event_outbox
		WHERE status = 'pending' AND next_attempt_at <= NOW()
		   OR status = 'processing' AND processing_started_at + make_interval(secs => $2) < NOW()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("select due outbox rows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect due outbox rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err = tx.Query(ctx, `
		UPDATE event_outbox
		SET status = 'processing', processing_started_at = NOW(), attempts = attempts + 1
		WHERE id = ANY($1::bigint[])
		RETURNING id, exchange, routing_key, payload::text, attempts
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("lease outbox rows: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxMessage, error) {
		var (
			msg     OutboxMessage
			payload string
		)
		err := row.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payload, &msg.Attempts)
		msg.Payload = []byte(payload)
		return msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan leased outbox rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit outbox claim: %w", err)
	}
	// UPDATE ... RETURNING does not preserve the claim order.
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (s *PostgresStore) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published', published_at = NOW(), processing_started_at = NULL, last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

// MarkOutboxFailed returns the message to the queue, due again after retryAfter.
func (s *PostgresStore) MarkOutboxFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + make_interval(secs => $2),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfter.Seconds(), truncateUTF8(reason, maxOutboxErrorBytes))
	return err
}

// truncateUTF8 cuts s to at most n bytes without splitting a multi-byte rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
