package models

// Confession statuses. Rejected items are deleted, never stored.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Confession is a moderated content item. PublicID is assigned only at
// approval time, monotonically increasing, and immutable thereafter.
type Confession struct {
	ID         string `json:"id"`
	Author     int64  `json:"author"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Status     string `json:"status"`
	PublicID   int64  `json:"public_id,omitempty"`
	// An actor id appears in at most one of the two vote sets.
	Upvotes    []int64 `json:"upvotes,omitempty"`
	Downvotes  []int64 `json:"downvotes,omitempty"`
	CreatedTS  int64   `json:"created_ts,omitempty"`
	ApprovedTS int64   `json:"approved_ts,omitempty"`
}

// Comment belongs to a confession and carries its own exclusive vote
// sets plus one level of lightweight replies.
type Comment struct {
	ID           string  `json:"id"`
	ConfessionID string  `json:"confession_id"`
	Author       int64   `json:"author"`
	AuthorName   string  `json:"author_name"`
	Body         string  `json:"body"`
	Upvotes      []int64 `json:"upvotes,omitempty"`
	Downvotes    []int64 `json:"downvotes,omitempty"`
	Replies      []Reply `json:"replies,omitempty"`
	CreatedTS    int64   `json:"created_ts,omitempty"`
}

// Reply is an embedded comment reply. Replies nest exactly one level;
// there is no reply-to-reply.
type Reply struct {
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	CreatedTS  int64  `json:"created_ts,omitempty"`
}
