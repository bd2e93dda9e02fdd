// Package flow is the persisted per-actor wizard: it turns the stateless
// request/response cycle into coherent multi-turn conversations by
// advancing a step tag plus an accumulated draft one input at a time.
package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"confessd/pkg/board"
	"confessd/pkg/config"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/outbox"
	"confessd/pkg/store"
)

// Step names a wizard stage. The set is closed; there is no generic
// workflow DSL.
type Step string

const (
	StepNone Step = ""

	// three-step custom-button authoring
	StepButtonName    Step = "button_name"
	StepButtonContent Step = "button_content"
	StepButtonLinks   Step = "button_links"

	// two-step channel registration
	StepChannelName Step = "channel_name"
	StepChannelLink Step = "channel_link"

	// broadcast staging; the confirmation stage is its own step value,
	// distinct from "no flow"
	StepBroadcastText    Step = "broadcast_text"
	StepBroadcastConfirm Step = "broadcast_confirm"

	// single-step profile editing
	StepNickname Step = "profile_nickname"
	StepBio      Step = "profile_bio"
	StepEmoji    Step = "profile_emoji"

	// board flows
	StepConfession Step = "confession_text"
	StepComment    Step = "comment_text"
	StepReply      Step = "reply_text"
)

// Draft accumulates the typed fields of a single flow across its steps.
// It is serialized to JSON only at the store boundary; each step reads
// and writes exactly the fields it owns. Cleared in full on completion
// or cancellation.
type Draft struct {
	ButtonLabel   string `json:"button_label,omitempty"`
	ButtonContent string `json:"button_content,omitempty"`
	ChannelName   string `json:"channel_name,omitempty"`
	BroadcastText string `json:"broadcast_text,omitempty"`
	ConfessionID  string `json:"confession_id,omitempty"`
	CommentID     string `json:"comment_id,omitempty"`
}

// Env carries the collaborators step handlers need.
type Env struct {
	Cfg   *config.Config
	Send  outbox.Sender
	Board *board.Service
	Out   *outbox.Queue
}

// Ctx is the per-input handler context.
type Ctx struct {
	Env    *Env
	Actor  *models.Actor
	ChatID int64
	Input  string
	Draft  Draft
}

// Handler processes one input for one step.
type Handler func(c *Ctx) error

// reply sends a plain text response to the actor's chat.
func (c *Ctx) reply(text string) error {
	_, err := c.Env.Send.SendMessage(c.ChatID, text, nil)
	return err
}

// advance stashes the draft, moves the actor to the next step and
// prompts for its input.
func (c *Ctx) advance(next Step, prompt string) error {
	if err := saveState(c.Actor, next, c.Draft); err != nil {
		return err
	}
	return c.reply(prompt)
}

// finish clears the flow state and confirms.
func (c *Ctx) finish(confirm string) error {
	if err := clearState(c.Actor); err != nil {
		return err
	}
	return c.reply(confirm)
}

// saveState persists the wizard position, serializing the typed draft at
// the store boundary.
func saveState(actor *models.Actor, step Step, d Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	st := models.AdminState{Step: string(step), Draft: raw}
	if err := store.SaveAdminState(actor.ID, st); err != nil {
		return err
	}
	actor.AdminState = st
	return nil
}

func clearState(actor *models.Actor) error {
	st := models.AdminState{}
	if err := store.SaveAdminState(actor.ID, st); err != nil {
		return err
	}
	actor.AdminState = st
	return nil
}

// Start begins a flow at the given step and prompts for its first input.
func Start(env *Env, actor *models.Actor, chatID int64, step Step, d Draft, prompt string) error {
	if err := saveState(actor, step, d); err != nil {
		return err
	}
	_, err := env.Send.SendMessage(chatID, prompt, nil)
	return err
}

// isCancel recognizes the dedicated cancellation token, honored inside
// every step.
func isCancel(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return s == "cancel" || s == "/cancel"
}

// HandleInput routes input to the actor's active step. It returns false
// when no step is active, in which case the caller falls through to
// menu/button matching. While a step is active it owns all input.
func HandleInput(env *Env, actor *models.Actor, chatID int64, input string) (bool, error) {
	if !actor.AdminState.Active() {
		return false, nil
	}
	step := Step(actor.AdminState.Step)

	if isCancel(input) {
		if err := clearState(actor); err != nil {
			return true, err
		}
		_, err := env.Send.SendMessage(chatID, "Cancelled.", nil)
		return true, err
	}

	h, ok := handlers[step]
	if !ok {
		// unknown persisted step (e.g. a flow removed across deploys):
		// clear rather than lock the actor out
		logger.Warn("unknown_step_cleared", "actor", actor.ID, "step", actor.AdminState.Step)
		if err := clearState(actor); err != nil {
			return true, err
		}
		return true, nil
	}

	var d Draft
	if len(actor.AdminState.Draft) > 0 {
		if err := json.Unmarshal(actor.AdminState.Draft, &d); err != nil {
			logger.Error("corrupt_draft_cleared", "actor", actor.ID, "step", actor.AdminState.Step, "error", err)
			if cerr := clearState(actor); cerr != nil {
				return true, cerr
			}
			return true, nil
		}
	}

	c := &Ctx{Env: env, Actor: actor, ChatID: chatID, Input: input, Draft: d}
	if err := h(c); err != nil {
		logger.Error("step_handler_failed", "actor", actor.ID, "step", string(step), "error", err)
		return true, err
	}
	return true, nil
}
