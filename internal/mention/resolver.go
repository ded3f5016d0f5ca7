// Package mention turns the resolved user ids attached to a content-creation
// action into Mention notifications. Extraction of @handles from free text is
// not done here; callers hand over ids that the request layer already parsed.
package mention

import (
	"context"
	"fmt"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/KTachibanaM/pill-city/internal/graph"
	"github.com/KTachibanaM/pill-city/internal/notification"
	"github.com/samber/lo"
)

type Resolver struct {
	graph      *graph.Service
	dispatcher *notification.Service
}

func NewResolver(g *graph.Service, dispatcher *notification.Service) *Resolver {
	return &Resolver{graph: g, dispatcher: dispatcher}
}

// ResolveMentions dispatches one Mention notification per mentioned user.
// Being mentioned is an invitation: no visibility check is applied, and a
// user mentioning themselves is notified like anyone else. All ids are
// validated before the first dispatch so an unknown id fails the whole call
// without partial fan-out. q carries the caller's transaction.
//
// The dedupe key is derived from the notified href plus the mentioned user,
// so a retried call produces no duplicate records.
func (r *Resolver) ResolveMentions(ctx context.Context, q db.Execer, actorID, notifiedHref, notifiedSummary string, mentionedUserIDs []string) ([]notification.Notification, error) {
	userIDs := lo.Uniq(mentionedUserIDs)

	for _, userID := range userIDs {
		exists, err := r.graph.UserExists(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("mentioned user %s: %w", userID, graph.ErrNotFound)
		}
	}

	var out []notification.Notification
	for _, userID := range userIDs {
		n, created, err := r.dispatcher.Notify(ctx, q, notification.Input{
			Actor:            actorID,
			NotifyingHref:    "/profile/" + actorID,
			NotifyingSummary: "",
			Action:           notification.ActionMention,
			NotifiedHref:     notifiedHref,
			NotifiedSummary:  notifiedSummary,
			Owner:            userID,
			DedupeKey:        "mention:" + notifiedHref + ":" + userID,
		})
		if err != nil {
			return nil, err
		}
		if created {
			out = append(out, n)
		}
	}
	return out, nil
}
