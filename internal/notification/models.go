package notification

// Action is what the notifier did to the owner's content.
type Action string

const (
	ActionComment  Action = "comment"
	ActionMention  Action = "mention"
	ActionReaction Action = "reaction"
	ActionReshare  Action = "reshare"
)

// Notification records "who did what to whose content". Hrefs and summaries
// are snapshots copied at creation time, never re-fetched, so a record stays
// meaningful after the referenced content is deleted. Immutable except for
// the unread flag, which goes unread -> read exactly once.
type Notification struct {
	ID               string `json:"id"`
	Action           Action `json:"action"`
	NotifierID       string `json:"notifier_id"`
	NotifyingHref    string `json:"notifying_href"`
	NotifyingSummary string `json:"notifying_summary"`
	OwnerID          string `json:"owner_id"`
	NotifiedHref     string `json:"notified_href"`
	NotifiedSummary  string `json:"notified_summary"`
	Unread           bool   `json:"unread"`
	CreatedAt        int64  `json:"created_at"`
}
