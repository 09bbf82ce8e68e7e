package deadletter

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
)

const defaultListLimit = 100

// Repository persists records a consumer group committed without handling.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record stores dl. Recording the same group, topic, partition
// and offset twice keeps the first entry.
func (r *Repository) Record(ctx context.Context, dl domain.DeadLetter) error {
	payload := dl.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (consumer_group, topic, partition, "offset", record_key, payload, outcome, reason, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (consumer_group, topic, partition, "offset") DO NOTHING
	`, dl.ConsumerGroup, dl.Topic, dl.Partition, dl.Offset, dl.Key, payload, dl.Outcome, dl.Reason, dl.FailedAt)
	return err
}

// ListByGroup returns the most recent dead letters of group, newest first.
func (r *Repository) ListByGroup(ctx context.Context, group string, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, consumer_group, topic, partition, "offset", record_key, payload, outcome, reason, failed_at
		FROM dead_letters
		WHERE consumer_group = $1
		ORDER BY failed_at DESC, id DESC
		LIMIT $2
	`, group, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.ConsumerGroup, &dl.Topic, &dl.Partition, &dl.Offset,
			&dl.Key, &dl.Payload, &dl.Outcome, &dl.Reason, &dl.FailedAt); err != nil {
			return nil, err
		}
		letters = append(letters, dl)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return letters, nil
}
