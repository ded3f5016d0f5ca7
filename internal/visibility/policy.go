// Package visibility decides whether a viewer may see and act on a post.
//
// The decision is split in two stages: Decide is the pure rule over already
// gathered facts, Checker gathers those facts (circle membership, mute state)
// and applies the rule. Mutations and reads both go through Checker.CanSee;
// nothing else in the codebase makes an allow/deny call.
package visibility

import (
	"context"
	"errors"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/samber/lo"
)

// ErrUnauthorized is raised on deny and propagates unchanged to the HTTP
// boundary, where it maps to 403. It is never collapsed into a not-found.
var ErrUnauthorized = errors.New("unauthorized access")

// Context distinguishes a passive feed view from a direct interaction.
// Feed-only suppression (mutes) applies solely under HomeOrProfile; a viewer
// who cannot see a public post in their feed can still open and comment on it
// by direct link. Write paths must always pass DirectInteraction.
type Context int

const (
	HomeOrProfile Context = iota
	DirectInteraction
)

// PostView is the slice of a post the rule needs.
type PostView struct {
	ID        string
	AuthorID  string
	Public    bool
	CircleIDs []string
}

// Decide is the pure visibility rule. viewerInAudience and feedSuppressed are
// the two externally gathered facts; everything else is on the post itself.
//
// Order matters: author, then public (subject to feed suppression), then
// circle audience, then deny.
func Decide(viewerID string, post PostView, viewerInAudience, feedSuppressed bool, vctx Context) bool {
	if post.AuthorID == viewerID {
		return true
	}
	if post.Public {
		return !(vctx == HomeOrProfile && feedSuppressed)
	}
	return viewerInAudience
}

// FeedFilter is the viewer-specific suppression list consulted for public
// posts in feed contexts only.
type FeedFilter interface {
	Suppressed(ctx context.Context, viewerID, authorID string) (bool, error)
}

type Checker struct {
	db     db.Querier
	filter FeedFilter
}

// NewChecker builds a checker. filter may be nil, in which case no feed
// suppression applies.
func NewChecker(q db.Querier, filter FeedFilter) *Checker {
	return &Checker{db: q, filter: filter}
}

// CanSee returns nil when the viewer may see the post under vctx, and
// ErrUnauthorized otherwise. Comments have no audience of their own; callers
// check the parent post.
func (c *Checker) CanSee(ctx context.Context, viewerID string, post PostView, vctx Context) error {
	inAudience := false
	if !post.Public && post.AuthorID != viewerID && len(post.CircleIDs) > 0 {
		var err error
		inAudience, err = c.inAudience(ctx, viewerID, post.CircleIDs)
		if err != nil {
			return err
		}
	}

	suppressed := false
	if vctx == HomeOrProfile && post.Public && c.filter != nil {
		var err error
		suppressed, err = c.filter.Suppressed(ctx, viewerID, post.AuthorID)
		if err != nil {
			return err
		}
	}

	if !Decide(viewerID, post, inAudience, suppressed, vctx) {
		return ErrUnauthorized
	}
	return nil
}

// Visible filters posts for feed rendering. Membership is fetched once for
// the viewer and the pure rule is applied per post.
func (c *Checker) Visible(ctx context.Context, viewerID string, posts []PostView, audienceCircleIDs []string, vctx Context) ([]PostView, error) {
	memberOf := lo.SliceToMap(audienceCircleIDs, func(id string) (string, struct{}) {
		return id, struct{}{}
	})

	var out []PostView
	for _, post := range posts {
		inAudience := lo.SomeBy(post.CircleIDs, func(id string) bool {
			_, ok := memberOf[id]
			return ok
		})

		suppressed := false
		if vctx == HomeOrProfile && post.Public && c.filter != nil && post.AuthorID != viewerID {
			var err error
			suppressed, err = c.filter.Suppressed(ctx, viewerID, post.AuthorID)
			if err != nil {
				return nil, err
			}
		}

		if Decide(viewerID, post, inAudience, suppressed, vctx) {
			out = append(out, post)
		}
	}
	return out, nil
}

// circle members and circle owners both count as audience
func (c *Checker) inAudience(ctx context.Context, viewerID string, circleIDs []string) (bool, error) {
	row := c.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM circle_members WHERE user_id = $1 AND circle_id = ANY($2))
		    OR EXISTS (SELECT 1 FROM circles WHERE owner_id = $1 AND id = ANY($2))
	`, viewerID, circleIDs)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
