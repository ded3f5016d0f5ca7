package content

import "github.com/KTachibanaM/pill-city/internal/visibility"

// Post is the root of a content tree: the post itself, its top-level
// comments, and one level of nested comments under each of those. Content is
// nil for media-only posts. CircleIDs is the audience and only matters when
// Public is false.
type Post struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"author_id"`
	Content      *string   `json:"content"`
	Public       bool      `json:"is_public"`
	CircleIDs    []string  `json:"circle_ids,omitempty"`
	Reshareable  bool      `json:"reshareable"`
	ResharedFrom *string   `json:"reshared_from,omitempty"`
	CreatedAt    int64     `json:"created_at"`
	Comments     []Comment `json:"comments,omitempty"`
}

// Comment has no audience of its own; whoever sees the parent post sees it.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt int64     `json:"created_at"`
	Comments  []Comment `json:"comments,omitempty"`
}

func (p *Post) Href() string {
	return "/post/" + p.ID
}

// Summary is the content snapshot copied into notifications at creation time.
func (p *Post) Summary() string {
	if p.Content == nil {
		return ""
	}
	return *p.Content
}

func (c *Comment) Href(p *Post) string {
	return p.Href() + "#comment-" + c.ID
}

// FindComment walks top-level comments in creation order, checking each
// comment's own id before descending into its nested comments. Nesting stops
// at one level, so no recursion.
func (p *Post) FindComment(id string) (*Comment, bool) {
	for i := range p.Comments {
		c := &p.Comments[i]
		if c.ID == id {
			return c, true
		}
		for j := range c.Comments {
			if c.Comments[j].ID == id {
				return &c.Comments[j], true
			}
		}
	}
	return nil, false
}

// topLevelComment finds id among top-level comments only.
func (p *Post) topLevelComment(id string) (*Comment, bool) {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return &p.Comments[i], true
		}
	}
	return nil, false
}

// View projects the post into what the visibility rule needs.
func (p *Post) View() visibility.PostView {
	return visibility.PostView{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Public:    p.Public,
		CircleIDs: p.CircleIDs,
	}
}
