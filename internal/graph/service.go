package graph

import (
	"context"
	"errors"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Service owns user identities, directed follow edges, circles and the
// viewer-maintained mute list used for feed suppression.
type Service struct {
	db    db.Querier
	redis *redis.Client
}

func NewService(q db.Querier, redisClient *redis.Client) *Service {
	return &Service{db: q, redis: redisClient}
}

func (s *Service) FindUser(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, userID)
	var u User
	if err := row.Scan(&u.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.FindUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Follow adds a follower -> followee edge. ErrNotFound for an unknown target,
// ErrConflict when the edge already exists.
func (s *Service) Follow(ctx context.Context, followerID, followingID string) error {
	if _, err := s.FindUser(ctx, followingID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO follows (follower_id, following_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, followerID, followingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Service) Unfollow(ctx context.Context, followerID, followingID string) error {
	if _, err := s.FindUser(ctx, followingID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM follows WHERE follower_id = $1 AND following_id = $2
	`, followerID, followingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Service) Followings(ctx context.Context, followerID string) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT following_id FROM follows WHERE follower_id = $1 ORDER BY following_id
	`, followerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateCircle creates a circle owned by ownerID. Names are unique per owner.
func (s *Service) CreateCircle(ctx context.Context, ownerID, name string) (Circle, error) {
	if name == "" {
		return Circle{}, ErrConflict
	}
	circle := Circle{ID: uuid.NewString(), OwnerID: ownerID, Name: name}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO circles (id, owner_id, name)
		VALUES ($1,$2,$3)
		ON CONFLICT DO NOTHING
	`, circle.ID, circle.OwnerID, circle.Name)
	if err != nil {
		return Circle{}, err
	}
	if tag.RowsAffected() == 0 {
		return Circle{}, ErrConflict
	}
	return circle, nil
}

func (s *Service) findOwnedCircle(ctx context.Context, ownerID, circleID string) (Circle, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name FROM circles WHERE id = $1 AND owner_id = $2
	`, circleID, ownerID)
	var c Circle
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Circle{}, ErrNotFound
		}
		return Circle{}, err
	}
	return c, nil
}

// AddCircleMember is owner-only; the circle must belong to ownerID.
func (s *Service) AddCircleMember(ctx context.Context, ownerID, circleID, memberID string) error {
	if _, err := s.findOwnedCircle(ctx, ownerID, circleID); err != nil {
		return err
	}
	if _, err := s.FindUser(ctx, memberID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO circle_members (circle_id, user_id)
		VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, circleID, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Service) RemoveCircleMember(ctx context.Context, ownerID, circleID, memberID string) error {
	if _, err := s.findOwnedCircle(ctx, ownerID, circleID); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM circle_members WHERE circle_id = $1 AND user_id = $2
	`, circleID, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Service) ListCircles(ctx context.Context, ownerID string) ([]Circle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.owner_id, c.name, cm.user_id
		FROM circles c
		LEFT JOIN circle_members cm ON cm.circle_id = c.id
		WHERE c.owner_id = $1
		ORDER BY c.name, cm.user_id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]*Circle{}
	var order []string
	for rows.Next() {
		var c Circle
		var member *string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &member); err != nil {
			return nil, err
		}
		existing, ok := byID[c.ID]
		if !ok {
			byID[c.ID] = &c
			existing = &c
			order = append(order, c.ID)
		}
		if member != nil {
			existing.MemberIDs = append(existing.MemberIDs, *member)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Map(order, func(id string, _ int) Circle { return *byID[id] }), nil
}

// OwnedCircleIDs filters circleIDs down to those owned by ownerID. Posting to
// someone else's circle is indistinguishable from posting to an unknown one.
func (s *Service) OwnedCircleIDs(ctx context.Context, ownerID string, circleIDs []string) ([]string, error) {
	if len(circleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id FROM circles WHERE owner_id = $1 AND id = ANY($2)
	`, ownerID, circleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned = append(owned, id)
	}
	return owned, rows.Err()
}

// AudienceCircleIDs returns every circle the viewer belongs to, as member or
// owner. A circle's owner always counts as part of its audience.
func (s *Service) AudienceCircleIDs(ctx context.Context, viewerID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT circle_id FROM circle_members WHERE user_id = $1
		UNION
		SELECT id FROM circles WHERE owner_id = $1
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
