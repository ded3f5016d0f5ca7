package notification

import (
	"context"
	"errors"
	"time"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/KTachibanaM/pill-city/internal/metrics"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Input is everything Notify needs to build a record. DedupeKey makes the
// dispatch idempotent: a retried call with the same key inserts nothing.
// Leave it empty for actions where repeats must produce independent records
// (reactions, reshares); a fresh key is generated per call.
type Input struct {
	Actor            string
	NotifyingHref    string
	NotifyingSummary string
	Action           Action
	NotifiedHref     string
	NotifiedSummary  string
	Owner            string
	DedupeKey        string
}

type Service struct {
	db  db.Querier
	now func() int64
}

func NewService(q db.Querier) *Service {
	return &Service{db: q, now: func() int64 { return time.Now().Unix() }}
}

// Notify builds and persists one unread notification. q is the write handle:
// pass the surrounding transaction when the notification must commit together
// with the mutation it describes, or nil to write on the service's own pool.
// The returned bool is false when the dedupe key already exists.
func (s *Service) Notify(ctx context.Context, q db.Execer, in Input) (Notification, bool, error) {
	if q == nil {
		q = s.db
	}

	n := Notification{
		ID:               uuid.NewString(),
		Action:           in.Action,
		NotifierID:       in.Actor,
		NotifyingHref:    in.NotifyingHref,
		NotifyingSummary: in.NotifyingSummary,
		OwnerID:          in.Owner,
		NotifiedHref:     in.NotifiedHref,
		NotifiedSummary:  in.NotifiedSummary,
		Unread:           true,
		CreatedAt:        s.now(),
	}

	dedupeKey := in.DedupeKey
	if dedupeKey == "" {
		dedupeKey = n.ID
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO notifications
			(id, action, notifier_id, notifying_href, notifying_summary, owner_id, notified_href, notified_summary, unread, dedupe_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9,$10)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, n.ID, string(n.Action), n.NotifierID, n.NotifyingHref, n.NotifyingSummary, n.OwnerID, n.NotifiedHref, n.NotifiedSummary, dedupeKey, n.CreatedAt)
	if err != nil {
		return Notification{}, false, err
	}
	if tag.RowsAffected() == 0 {
		return Notification{}, false, nil
	}
	metrics.NotificationsDispatched.WithLabelValues(string(n.Action)).Inc()
	return n, true, nil
}

// List returns the owner's notifications, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Notification, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, action, notifier_id, notifying_href, notifying_summary, owner_id, notified_href, notified_summary, unread, created_at
		FROM notifications
		WHERE owner_id = $1
		ORDER BY seq DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var action string
		if err := rows.Scan(&n.ID, &action, &n.NotifierID, &n.NotifyingHref, &n.NotifyingSummary, &n.OwnerID, &n.NotifiedHref, &n.NotifiedSummary, &n.Unread, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Action = Action(action)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flips one notification to read. Owner-only; re-marking a read
// notification is a no-op success, the flag never goes back to unread.
func (s *Service) MarkRead(ctx context.Context, ownerID, notificationID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET unread = FALSE WHERE id = $1 AND owner_id = $2
	`, notificationID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, ownerID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications SET unread = FALSE WHERE owner_id = $1 AND unread
	`, ownerID)
	return err
}
