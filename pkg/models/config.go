package models

// ConfigEntry is a key/value pair for menu labels, welcome text and
// similar presentation strings.
type ConfigEntry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
}

// Button is an ad-hoc menu button registered through the authoring flow.
// Label doubles as the unique key the dispatcher matches input against.
type Button struct {
	Label     string `json:"label"`
	Content   string `json:"content"`
	Links     []Link `json:"links,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}

// Link is one decorated hyperlink attached to a button's content.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Channel is a registered channel reference (name plus invite link).
type Channel struct {
	Name      string `json:"name"`
	Link      string `json:"link"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}

// DedupMarker proves an update identifier has already been processed.
// Markers are purged by retention after the configured TTL.
type DedupMarker struct {
	UpdateID  int64 `json:"update_id"`
	CreatedTS int64 `json:"created_ts"`
}
