package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/KTachibanaM/pill-city/internal/graph"
	"github.com/KTachibanaM/pill-city/internal/mention"
	"github.com/KTachibanaM/pill-city/internal/metrics"
	"github.com/KTachibanaM/pill-city/internal/notification"
	"github.com/KTachibanaM/pill-city/internal/visibility"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

const maxContentLength = 65536

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failure")
)

// Pusher delivers freshly committed notifications to the recipient's open
// connections. Best-effort, invoked only after the transaction commits.
type Pusher interface {
	Push(ownerID string, payload []byte)
}

type Service struct {
	db         db.Querier
	graph      *graph.Service
	checker    *visibility.Checker
	dispatcher *notification.Service
	mentions   *mention.Resolver
	pusher     Pusher
	sanitizer  *bluemonday.Policy
	now        func() int64
}

func NewService(q db.Querier, g *graph.Service, checker *visibility.Checker, dispatcher *notification.Service, mentions *mention.Resolver, pusher Pusher) *Service {
	return &Service{
		db:         q,
		graph:      g,
		checker:    checker,
		dispatcher: dispatcher,
		mentions:   mentions,
		pusher:     pusher,
		sanitizer:  bluemonday.UGCPolicy(),
		now:        func() int64 { return time.Now().Unix() },
	}
}

type CreatePostInput struct {
	Content      *string  `json:"content"`
	Public       bool     `json:"is_public"`
	CircleIDs    []string `json:"circle_ids"`
	Reshareable  bool     `json:"reshareable"`
	ResharedFrom *string  `json:"reshared_from"`
}

// CreatePost creates a post, optionally as a reshare of another. The audience
// circles must be owned by the author. A reshare requires the original to be
// visible to the author and marked reshareable, and inherits nothing from the
// original's audience.
func (s *Service) CreatePost(ctx context.Context, actorID string, in CreatePostInput) (Post, error) {
	content, err := s.cleanContent(in.Content)
	if err != nil {
		return Post{}, err
	}

	circleIDs := lo.Uniq(in.CircleIDs)
	if !in.Public && len(circleIDs) > 0 {
		owned, err := s.graph.OwnedCircleIDs(ctx, actorID, circleIDs)
		if err != nil {
			return Post{}, err
		}
		if len(owned) != len(circleIDs) {
			return Post{}, fmt.Errorf("audience circle: %w", ErrNotFound)
		}
	}

	var original *Post
	if in.ResharedFrom != nil {
		orig, err := s.loadPost(ctx, *in.ResharedFrom)
		if err != nil {
			return Post{}, err
		}
		if err := s.checker.CanSee(ctx, actorID, orig.View(), visibility.DirectInteraction); err != nil {
			return Post{}, err
		}
		if !orig.Reshareable {
			return Post{}, fmt.Errorf("%w: post %s is not reshareable", ErrValidation, orig.ID)
		}
		original = &orig
	}

	post := Post{
		ID:           uuid.NewString(),
		AuthorID:     actorID,
		Content:      content,
		Public:       in.Public,
		CircleIDs:    circleIDs,
		Reshareable:  in.Reshareable,
		ResharedFrom: in.ResharedFrom,
		CreatedAt:    s.now(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Post{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO posts (id, author_id, content, is_public, reshareable, reshared_from, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, post.ID, post.AuthorID, post.Content, post.Public, post.Reshareable, post.ResharedFrom, post.CreatedAt); err != nil {
		return Post{}, err
	}
	for _, circleID := range circleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO post_circles (post_id, circle_id) VALUES ($1,$2)
		`, post.ID, circleID); err != nil {
			return Post{}, err
		}
	}

	var created []notification.Notification
	if original != nil && original.AuthorID != actorID {
		n, ok, err := s.dispatcher.Notify(ctx, tx, notification.Input{
			Actor:            actorID,
			NotifyingHref:    post.Href(),
			NotifyingSummary: post.Summary(),
			Action:           notification.ActionReshare,
			NotifiedHref:     original.Href(),
			NotifiedSummary:  original.Summary(),
			Owner:            original.AuthorID,
			DedupeKey:        "reshare:" + post.ID,
		})
		if err != nil {
			return Post{}, err
		}
		if ok {
			created = append(created, n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Post{}, err
	}
	s.push(created)
	return post, nil
}

// GetPost resolves a permalink: the full tree, gated by visibility under the
// least restrictive context.
func (s *Service) GetPost(ctx context.Context, viewerID, postID string) (Post, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	if err := s.checker.CanSee(ctx, viewerID, post.View(), visibility.DirectInteraction); err != nil {
		return Post{}, err
	}
	if err := s.loadComments(ctx, &post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// HomeFeed returns the viewer's own posts and those of followed authors,
// filtered by visibility under the feed context.
func (s *Service) HomeFeed(ctx context.Context, viewerID string) ([]Post, error) {
	posts, err := s.queryPosts(ctx, `
		SELECT id, author_id, content, is_public, reshareable, reshared_from, created_at
		FROM posts
		WHERE author_id = $1
		   OR author_id IN (SELECT following_id FROM follows WHERE follower_id = $1)
		ORDER BY seq DESC
	`, viewerID)
	if err != nil {
		return nil, err
	}
	return s.filterFeed(ctx, viewerID, posts)
}

// ProfileFeed returns one author's posts as seen by the viewer.
func (s *Service) ProfileFeed(ctx context.Context, viewerID, authorID string) ([]Post, error) {
	if _, err := s.graph.FindUser(ctx, authorID); err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", authorID, ErrNotFound)
		}
		return nil, err
	}
	posts, err := s.queryPosts(ctx, `
		SELECT id, author_id, content, is_public, reshareable, reshared_from, created_at
		FROM posts
		WHERE author_id = $1
		ORDER BY seq DESC
	`, authorID)
	if err != nil {
		return nil, err
	}
	return s.filterFeed(ctx, viewerID, posts)
}

type CreateCommentInput struct {
	Content          *string  `json:"content"`
	ParentCommentID  *string  `json:"parent_comment_id"`
	MentionedUserIDs []string `json:"mentioned_user_ids"`
}

// CreateComment authorizes the actor against the parent post, appends the
// comment at the right level, and fans out notifications, all in one
// transaction: either the comment is durable and every notification with it,
// or nothing happened.
//
// The primary notification goes to the post author for a top-level comment
// and to the parent comment's author for a nested one, unless that recipient
// is the actor. Mention notifications are dispatched for every mentioned
// user regardless of their ability to see the post.
func (s *Service) CreateComment(ctx context.Context, actorID, postID string, in CreateCommentInput) (Comment, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return Comment{}, err
	}

	// Commenting is a direct interaction: someone whose feed suppresses this
	// post can still comment if they reached it by permalink or mention.
	if err := s.checker.CanSee(ctx, actorID, post.View(), visibility.DirectInteraction); err != nil {
		return Comment{}, err
	}

	content, err := s.cleanContent(in.Content)
	if err != nil {
		return Comment{}, err
	}

	if err := s.loadComments(ctx, &post); err != nil {
		return Comment{}, err
	}

	var parent *Comment
	if in.ParentCommentID != nil {
		p, ok := post.topLevelComment(*in.ParentCommentID)
		if !ok {
			if _, nested := post.FindComment(*in.ParentCommentID); nested {
				return Comment{}, fmt.Errorf("%w: comments nest at most one level", ErrValidation)
			}
			return Comment{}, fmt.Errorf("comment %s: %w", *in.ParentCommentID, ErrNotFound)
		}
		parent = p
	}

	comment := Comment{
		ID:        uuid.NewString(),
		AuthorID:  actorID,
		Content:   deref(content),
		CreatedAt: s.now(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Comment{}, err
	}
	defer tx.Rollback(ctx)

	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO comments (id, post_id, parent_comment_id, author_id, content, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, comment.ID, post.ID, parentID, comment.AuthorID, comment.Content, comment.CreatedAt); err != nil {
		return Comment{}, err
	}

	recipient := post.AuthorID
	notifiedHref := post.Href()
	notifiedSummary := post.Summary()
	if parent != nil {
		recipient = parent.AuthorID
		notifiedHref = parent.Href(&post)
		notifiedSummary = parent.Content
	}

	var created []notification.Notification
	if recipient != actorID {
		n, ok, err := s.dispatcher.Notify(ctx, tx, notification.Input{
			Actor:            actorID,
			NotifyingHref:    comment.Href(&post),
			NotifyingSummary: comment.Content,
			Action:           notification.ActionComment,
			NotifiedHref:     notifiedHref,
			NotifiedSummary:  notifiedSummary,
			Owner:            recipient,
			DedupeKey:        "comment:" + comment.ID,
		})
		if err != nil {
			return Comment{}, err
		}
		if ok {
			created = append(created, n)
		}
	}

	mentioned, err := s.mentions.ResolveMentions(ctx, tx, actorID, comment.Href(&post), comment.Content, in.MentionedUserIDs)
	if err != nil {
		return Comment{}, err
	}
	created = append(created, mentioned...)

	if err := tx.Commit(ctx); err != nil {
		return Comment{}, err
	}

	metrics.CommentsCreated.Inc()
	s.push(created)
	return comment, nil
}

// FindComment loads the post's tree and looks the comment up in it.
func (s *Service) FindComment(ctx context.Context, viewerID, postID, commentID string) (Comment, error) {
	post, err := s.GetPost(ctx, viewerID, postID)
	if err != nil {
		return Comment{}, err
	}
	c, ok := post.FindComment(commentID)
	if !ok {
		return Comment{}, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return *c, nil
}

// DeleteComment removes a comment and, for a top-level one, its nested
// comments. Only the comment's author may delete it; this is the one
// authorization rule besides visibility.
func (s *Service) DeleteComment(ctx context.Context, actorID, postID, commentID string) error {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.loadComments(ctx, &post); err != nil {
		return err
	}
	c, ok := post.FindComment(commentID)
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if c.AuthorID != actorID {
		return visibility.ErrUnauthorized
	}
	_, err = s.db.Exec(ctx, `
		DELETE FROM comments WHERE id = $1 OR parent_comment_id = $1
	`, commentID)
	return err
}

// React records an emoji reaction and notifies the post author. Repeated
// reactions produce independent notifications on purpose.
func (s *Service) React(ctx context.Context, actorID, postID, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: emoji required", ErrValidation)
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.checker.CanSee(ctx, actorID, post.View(), visibility.DirectInteraction); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO reactions (id, post_id, author_id, emoji, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), post.ID, actorID, emoji, s.now()); err != nil {
		return err
	}

	var created []notification.Notification
	if post.AuthorID != actorID {
		n, ok, err := s.dispatcher.Notify(ctx, tx, notification.Input{
			Actor:            actorID,
			NotifyingHref:    post.Href(),
			NotifyingSummary: emoji,
			Action:           notification.ActionReaction,
			NotifiedHref:     post.Href(),
			NotifiedSummary:  post.Summary(),
			Owner:            post.AuthorID,
		})
		if err != nil {
			return err
		}
		if ok {
			created = append(created, n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.push(created)
	return nil
}

// cleanContent sanitizes exactly once and enforces the size cap. nil content
// (media-only input) passes through as an empty value.
func (s *Service) cleanContent(content *string) (*string, error) {
	raw := deref(content)
	if len(raw) > maxContentLength {
		return nil, fmt.Errorf("%w: content too long", ErrValidation)
	}
	clean := s.sanitizer.Sanitize(raw)
	return &clean, nil
}

func (s *Service) loadPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, author_id, content, is_public, reshareable, reshared_from, created_at
		FROM posts WHERE id = $1
	`, postID)
	var p Post
	if err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.Public, &p.Reshareable, &p.ResharedFrom, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		return Post{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT circle_id FROM post_circles WHERE post_id = $1
	`, postID)
	if err != nil {
		return Post{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var circleID string
		if err := rows.Scan(&circleID); err != nil {
			return Post{}, err
		}
		p.CircleIDs = append(p.CircleIDs, circleID)
	}
	return p, rows.Err()
}

// loadComments assembles the two-level tree in insertion order.
func (s *Service) loadComments(ctx context.Context, post *Post) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, parent_comment_id, author_id, content, created_at
		FROM comments WHERE post_id = $1
		ORDER BY seq
	`, post.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	type flat struct {
		comment  Comment
		parentID *string
	}
	var all []flat
	for rows.Next() {
		var f flat
		if err := rows.Scan(&f.comment.ID, &f.parentID, &f.comment.AuthorID, &f.comment.Content, &f.comment.CreatedAt); err != nil {
			return err
		}
		all = append(all, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	post.Comments = nil
	index := map[string]int{}
	for _, f := range all {
		if f.parentID == nil {
			post.Comments = append(post.Comments, f.comment)
			index[f.comment.ID] = len(post.Comments) - 1
		}
	}
	for _, f := range all {
		if f.parentID == nil {
			continue
		}
		if i, ok := index[*f.parentID]; ok {
			post.Comments[i].Comments = append(post.Comments[i].Comments, f.comment)
		}
	}
	return nil
}

func (s *Service) queryPosts(ctx context.Context, sql string, args ...any) ([]Post, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.Public, &p.Reshareable, &p.ResharedFrom, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachCircles(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Service) attachCircles(ctx context.Context, posts []Post) error {
	private := lo.Filter(posts, func(p Post, _ int) bool { return !p.Public })
	if len(private) == 0 {
		return nil
	}
	ids := lo.Map(private, func(p Post, _ int) string { return p.ID })
	rows, err := s.db.Query(ctx, `
		SELECT post_id, circle_id FROM post_circles WHERE post_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	circlesByPost := map[string][]string{}
	for rows.Next() {
		var postID, circleID string
		if err := rows.Scan(&postID, &circleID); err != nil {
			return err
		}
		circlesByPost[postID] = append(circlesByPost[postID], circleID)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range posts {
		posts[i].CircleIDs = circlesByPost[posts[i].ID]
	}
	return nil
}

func (s *Service) filterFeed(ctx context.Context, viewerID string, posts []Post) ([]Post, error) {
	audience, err := s.graph.AudienceCircleIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	views := lo.Map(posts, func(p Post, _ int) visibility.PostView { return p.View() })
	visibleViews, err := s.checker.Visible(ctx, viewerID, views, audience, visibility.HomeOrProfile)
	if err != nil {
		return nil, err
	}
	visibleIDs := lo.SliceToMap(visibleViews, func(v visibility.PostView) (string, struct{}) {
		return v.ID, struct{}{}
	})
	return lo.Filter(posts, func(p Post, _ int) bool {
		_, ok := visibleIDs[p.ID]
		return ok
	}), nil
}

func (s *Service) push(notifications []notification.Notification) {
	if s.pusher == nil {
		return
	}
	for _, n := range notifications {
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		s.pusher.Push(n.OwnerID, payload)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
