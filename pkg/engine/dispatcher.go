// Package engine routes inbound updates: idempotent ingestion through
// the dedup gate, deadline-bounded execution, then dispatch to the
// actor's active wizard step or to menu/button matching.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"confessd/pkg/board"
	"confessd/pkg/config"
	"confessd/pkg/flow"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/outbox"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

// Client is the outbound platform surface the engine needs. *tg.Client
// satisfies it; tests substitute a recorder.
type Client interface {
	SendMessage(chatID int64, text string, kb *tg.InlineKeyboardMarkup) (int, error)
	EditMessageText(chatID int64, messageID int, text string, kb *tg.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string) error
}

// Menu label config keys and their defaults. Operators override the
// labels through config entries; the dispatcher matches input against
// whatever is configured.
var menuDefaults = map[string]string{
	"label_confess": "🙏 Confess",
	"label_browse":  "📖 Browse",
	"label_profile": "👤 Profile",
	"label_streak":  "🔥 My Streak",
}

const welcomeKey = "welcome_text"
const defaultWelcome = "Welcome! Use the menu below to confess, browse, or manage your profile."

// relapse reason codes presented after an owner-validated relapse tap.
var reasonCodes = []struct{ Code, Label string }{
	{"stress", "Stress"},
	{"bored", "Boredom"},
	{"social", "Social pressure"},
	{"other", "Other"},
}

// Engine wires the dispatcher's collaborators.
type Engine struct {
	cfg    *config.Config
	client Client
	board  *board.Service
	flow   *flow.Env
	out    *outbox.Queue
}

// New builds the engine.
func New(cfg *config.Config, client Client, b *board.Service, out *outbox.Queue) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		board:  b,
		out:    out,
		flow:   &flow.Env{Cfg: cfg, Send: client, Board: b, Out: out},
	}
}

// HandleWebhook processes one raw webhook body: dedup gate first, then
// the deadline guard around dispatch. It never returns an error; the
// HTTP layer acknowledges success unconditionally.
func (e *Engine) HandleWebhook(body []byte) {
	store.UpdatesReceived.Inc()
	var u tg.Update
	if err := json.Unmarshal(body, &u); err != nil {
		logger.Warn("update_unmarshal_failed", "error", err)
		return
	}
	if err := store.InsertDedupMarker(u.UpdateID); err != nil {
		if errors.Is(err, store.ErrDupUpdate) {
			store.UpdatesDuplicate.Inc()
			logger.Debug("duplicate_update", "update_id", u.UpdateID)
			return
		}
		// gate unavailable: log and stop; the ack still goes out so the
		// platform does not retry into a broken path
		logger.Error("dedup_insert_failed", "update_id", u.UpdateID, "error", err)
		return
	}
	Guard(e.cfg.Bot.WebhookBudget.Std(), u.UpdateID, func() error {
		return e.Process(&u)
	})
}

// Process dispatches one deduplicated update.
func (e *Engine) Process(u *tg.Update) error {
	actorID := u.ActorID()
	if actorID == 0 {
		return nil
	}
	actor, err := e.upsertActor(u)
	if err != nil {
		return fmt.Errorf("upsert actor %d: %w", actorID, err)
	}
	if actor.Banned {
		return nil
	}
	role := RoleFor(e.cfg, actorID)

	if u.CallbackQuery != nil {
		return e.handleCallback(actor, role, u.CallbackQuery)
	}
	if u.Message != nil {
		return e.handleMessage(actor, role, u.Message)
	}
	return nil
}

// upsertActor creates the actor on first contact and refreshes
// display name and last-active on every update.
func (e *Engine) upsertActor(u *tg.Update) (*models.Actor, error) {
	id := u.ActorID()
	now := time.Now().UTC().UnixNano()
	a, err := store.GetActor(id)
	if errors.Is(err, store.ErrNotFound) {
		a = &models.Actor{ID: id, CreatedTS: now, StreakStart: now}
	} else if err != nil {
		return nil, err
	}
	var from *tg.User
	if u.Message != nil {
		from = u.Message.From
	} else if u.CallbackQuery != nil {
		from = u.CallbackQuery.From
	}
	if name := from.DisplayName(); name != "" {
		a.DisplayName = name
	}
	a.LastActive = now
	if err := store.SaveActor(a); err != nil {
		return nil, err
	}
	return a, nil
}

// handleMessage routes typed text. An active wizard step owns the input
// outright; only with no step active does menu/button matching run.
func (e *Engine) handleMessage(actor *models.Actor, role Role, msg *tg.Message) error {
	chatID := msg.Chat.ID
	text := msg.Text

	// an active step owns everything typed, command-looking or not
	handled, err := flow.HandleInput(e.flow, actor, chatID, text)
	if handled || err != nil {
		return err
	}

	if text == "/start" {
		return e.sendWelcome(actor, chatID)
	}

	// privileged-menu trigger
	if text == "/admin" {
		if role != RoleAdmin {
			_, serr := e.client.SendMessage(chatID, "Not allowed.", nil)
			return serr
		}
		return e.sendAdminMenu(chatID)
	}

	// configured menu labels
	if key, ok := e.matchMenuLabel(text); ok {
		return e.runMenuAction(actor, chatID, key)
	}

	// registered ad-hoc buttons
	if btn, err := store.GetButton(text); err == nil {
		return e.sendButtonContent(chatID, btn)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// no match: silent no-op
	return nil
}

// matchMenuLabel compares input against each configured menu label in a
// stable order; first match wins.
func (e *Engine) matchMenuLabel(text string) (string, bool) {
	for _, key := range []string{"label_confess", "label_browse", "label_profile", "label_streak"} {
		if text == e.menuLabel(key) {
			return key, true
		}
	}
	return "", false
}

func (e *Engine) menuLabel(key string) string {
	if v, err := store.GetConfigEntry(key); err == nil && v != "" {
		return v
	}
	return menuDefaults[key]
}

func (e *Engine) runMenuAction(actor *models.Actor, chatID int64, key string) error {
	switch key {
	case "label_confess":
		return e.startConfession(actor, chatID)
	case "label_browse":
		text, kb, err := e.board.BrowsePage(0)
		if err != nil {
			return err
		}
		return e.sendTracked(actor, chatID, text, kb)
	case "label_profile":
		return e.sendProfile(actor, chatID)
	case "label_streak":
		return e.sendStreak(actor, chatID)
	}
	return nil
}

func (e *Engine) startConfession(actor *models.Actor, chatID int64) error {
	return flow.Start(e.flow, actor, chatID, flow.StepConfession, flow.Draft{},
		"Send your confession. It will be posted under your profile name after moderation.")
}

func (e *Engine) sendWelcome(actor *models.Actor, chatID int64) error {
	welcome, err := store.GetConfigEntry(welcomeKey)
	if err != nil || welcome == "" {
		welcome = defaultWelcome
	}
	kb := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn(e.menuLabel("label_confess"), "confess")),
	}}
	_, serr := e.client.SendMessage(chatID, welcome, kb)
	return serr
}

func (e *Engine) sendProfile(actor *models.Actor, chatID int64) error {
	kb := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("Nickname", "set_nick"), tg.Btn("Bio", "set_bio"), tg.Btn("Emoji", "set_emoji")),
	}}
	return e.sendTracked(actor, chatID, board.ProfileView(actor), kb)
}

func (e *Engine) sendStreak(actor *models.Actor, chatID int64) error {
	days := 0
	if actor.StreakStart > 0 {
		days = int(time.Since(time.Unix(0, actor.StreakStart)).Hours() / 24)
	}
	text := fmt.Sprintf("🔥 Current streak: %d days\nBest: %d days", days, actor.BestStreak)
	kb := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("I relapsed", "relapse_"+strconv.FormatInt(actor.ID, 10))),
	}}
	return e.sendTracked(actor, chatID, text, kb)
}

func (e *Engine) sendAdminMenu(chatID int64) error {
	n, err := store.CountPending()
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Admin menu — %d confession(s) pending.", n)
	kb := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("Review queue", "admin_review")),
		tg.Row(tg.Btn("Broadcast", "admin_broadcast")),
		tg.Row(tg.Btn("New button", "admin_newbutton"), tg.Btn("New channel", "admin_newchannel")),
	}}
	_, serr := e.client.SendMessage(chatID, text, kb)
	return serr
}

func (e *Engine) sendButtonContent(chatID int64, btn *models.Button) error {
	var kb *tg.InlineKeyboardMarkup
	if len(btn.Links) > 0 {
		var rows [][]tg.InlineKeyboardButton
		for _, l := range btn.Links {
			rows = append(rows, tg.Row(tg.URLBtn(l.Label, l.URL)))
		}
		kb = &tg.InlineKeyboardMarkup{InlineKeyboard: rows}
	}
	_, err := e.client.SendMessage(chatID, btn.Content, kb)
	return err
}

// sendTracked sends an interactive view and remembers its message id so
// later callbacks can replace it in place.
func (e *Engine) sendTracked(actor *models.Actor, chatID int64, text string, kb *tg.InlineKeyboardMarkup) error {
	msgID, err := e.client.SendMessage(chatID, text, kb)
	if err != nil {
		return err
	}
	actor.LastMsgID = msgID
	return store.SaveActor(actor)
}
