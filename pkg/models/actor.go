package models

import "encoding/json"

// Actor is one end user, keyed by the platform's stable user identifier.
type Actor struct {
	ID          int64   `json:"id"`
	DisplayName string  `json:"display_name,omitempty"`
	Profile     Profile `json:"profile"`
	// StreakStart is the start of the current streak (ns); BestStreak is
	// the best completed streak in whole days.
	StreakStart int64 `json:"streak_start,omitempty"`
	BestStreak  int   `json:"best_streak,omitempty"`
	// LastActive is updated on every processed update (ns).
	LastActive int64 `json:"last_active,omitempty"`
	Banned     bool  `json:"banned,omitempty"`
	// LastMsgID references the last rendered interactive message so the
	// UI can be replaced in place rather than stacked.
	LastMsgID  int        `json:"last_msg_id,omitempty"`
	AdminState AdminState `json:"admin_state"`
	CreatedTS  int64      `json:"created_ts,omitempty"`
}

// Profile is the free-form actor profile. Aura is the accumulated
// reputation score awarded for moderated contributions.
type Profile struct {
	Nickname string `json:"nickname,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	Aura     int64  `json:"aura,omitempty"`
}

// AdminState is the persisted wizard position for an actor: the current
// step tag plus the step chain's accumulated draft. Draft is opaque at
// this layer; pkg/flow owns its typed shape. At most one step is active
// per actor; both fields are cleared together on completion or cancel.
type AdminState struct {
	Step  string          `json:"step,omitempty"`
	Draft json.RawMessage `json:"draft,omitempty"`
}

// Active reports whether a wizard step currently owns the actor's input.
func (s AdminState) Active() bool { return s.Step != "" }

// Name returns the display name used when tagging content: the profile
// nickname when set, otherwise the platform display name.
func (a *Actor) Name() string {
	if a.Profile.Nickname != "" {
		return a.Profile.Nickname
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return "anonymous"
}
