package db

import "context"

// Migrate creates the schema if it does not exist yet. Comments and
// notifications carry second-granular unix timestamps; comment ordering within
// a post is by insertion sequence, not by timestamp, so same-second appends
// keep a stable order.
func Migrate(ctx context.Context, q Querier) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS follows (
		follower_id TEXT NOT NULL REFERENCES users(id),
		following_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (follower_id, following_id)
	);
	CREATE TABLE IF NOT EXISTS circles (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		UNIQUE (owner_id, name)
	);
	CREATE TABLE IF NOT EXISTS circle_members (
		circle_id TEXT NOT NULL REFERENCES circles(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (circle_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES users(id),
		content TEXT,
		is_public BOOLEAN NOT NULL,
		reshareable BOOLEAN NOT NULL DEFAULT FALSE,
		reshared_from TEXT REFERENCES posts(id),
		created_at BIGINT NOT NULL,
		seq BIGSERIAL
	);
	CREATE TABLE IF NOT EXISTS post_circles (
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		circle_id TEXT NOT NULL REFERENCES circles(id) ON DELETE CASCADE,
		PRIMARY KEY (post_id, circle_id)
	);
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		parent_comment_id TEXT REFERENCES comments(id),
		author_id TEXT NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		seq BIGSERIAL
	);
	CREATE TABLE IF NOT EXISTS reactions (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL REFERENCES users(id),
		emoji TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		notifier_id TEXT NOT NULL REFERENCES users(id),
		notifying_href TEXT NOT NULL,
		notifying_summary TEXT NOT NULL,
		owner_id TEXT NOT NULL REFERENCES users(id),
		notified_href TEXT NOT NULL,
		notified_summary TEXT NOT NULL,
		unread BOOLEAN NOT NULL DEFAULT TRUE,
		dedupe_key TEXT NOT NULL UNIQUE,
		created_at BIGINT NOT NULL,
		seq BIGSERIAL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_owner ON notifications(owner_id);
	`
	_, err := q.Exec(ctx, schema)
	return err
}
