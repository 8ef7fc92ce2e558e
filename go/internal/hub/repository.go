package hub

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/auctionsync/go/internal/models"
	"github.com/mcdev12/auctionsync/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

//go:generate mockgen -source=repository.go -destination=mock_store.go -package=hub

//go:embed schema.sql
var schema string

// Store persists notifications and per-identity read receipts.
type Store interface {
	// Insert stores n unless its id already exists; created reports whether a row was written.
	Insert(ctx context.Context, n models.Notification) (created bool, err error)
	Get(ctx context.Context, id string) (models.Notification, error)
	// ListFor returns notifications addressed to identity or to all, newest first,
	// with Read set from identity's receipts.
	ListFor(ctx context.Context, identity string, limit int) ([]models.Notification, error)
	// MarkRead records receipts for ids addressed to identity; an empty ids marks all of them.
	MarkRead(ctx context.Context, identity string, ids []string) (int64, error)
}

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the notification tables and the insert trigger.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply notification schema: %w", err)
	}
	return nil
}

const insertNotification = `
INSERT INTO notifications (id, type, title, message, sender, recipient, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

const insertReceipt = `
INSERT INTO notification_reads (notification_id, identity)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

func (r *Repository) Insert(ctx context.Context, n models.Notification) (bool, error) {
	var created bool
	err := sqlutil.Run(ctx, r.db, func(tx sqlutil.Execer) error {
		res, err := tx.ExecContext(ctx, insertNotification,
			n.ID,
			string(n.Type),
			n.Title,
			n.Message,
			sqlutil.ToNullString(n.Sender),
			n.Recipient,
			sqlutil.ToNullRawMessage(n.Payload),
			n.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		created = affected > 0

		// The sender has already seen what they sent.
		if created && n.Sender != "" && n.Recipient == models.RecipientAll {
			if _, err := tx.ExecContext(ctx, insertReceipt, n.ID, n.Sender); err != nil {
				return fmt.Errorf("failed to insert sender receipt: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

const getNotification = `
SELECT id, type, title, message, sender, recipient, payload, created_at
FROM notifications
WHERE id = $1`

func (r *Repository) Get(ctx context.Context, id string) (models.Notification, error) {
	row := r.db.QueryRowContext(ctx, getNotification, id)
	n, err := scanNotification(row.Scan, false)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotFound
	}
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

const listNotifications = `
SELECT n.id, n.type, n.title, n.message, n.sender, n.recipient, n.payload, n.created_at,
       r.identity IS NOT NULL AS read
FROM notifications n
LEFT JOIN notification_reads r
       ON r.notification_id = n.id AND r.identity = $1
WHERE n.recipient = $1 OR n.recipient = 'all'
ORDER BY n.created_at DESC, n.id
LIMIT $2`

func (r *Repository) ListFor(ctx context.Context, identity string, limit int) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, listNotifications, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

const markRead = `
INSERT INTO notification_reads (notification_id, identity)
SELECT n.id, $1
FROM notifications n
WHERE (n.recipient = $1 OR n.recipient = 'all')
  AND ($2::text[] IS NULL OR n.id = ANY($2))
ON CONFLICT DO NOTHING`

func (r *Repository) MarkRead(ctx context.Context, identity string, ids []string) (int64, error) {
	var filter any
	if len(ids) > 0 {
		filter = pq.Array(ids)
	}
	res, err := r.db.ExecContext(ctx, markRead, identity, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read mark-read result: %w", err)
	}
	return affected, nil
}

func scanNotification(scan func(dest ...any) error, withRead bool) (models.Notification, error) {
	var (
		n       models.Notification
		typ     string
		sender  sql.NullString
		payload pqtype.NullRawMessage
	)
	dest := []any{&n.ID, &typ, &n.Title, &n.Message, &sender, &n.Recipient, &payload, &n.Timestamp}
	if withRead {
		dest = append(dest, &n.Read)
	}
	if err := scan(dest...); err != nil {
		return models.Notification{}, err
	}
	n.Type = models.NotificationType(typ)
	n.Sender = sqlutil.FromNullString(sender, "")
	n.Payload = sqlutil.FromNullRawMessage(payload)
	return n, nil
}
