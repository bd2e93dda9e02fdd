package engine

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"confessd/pkg/flow"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

// handleCallback decodes a button token and applies its action. Every
// owner-scoped token is validated against the invoking actor before any
// mutation; every path answers the callback so the client stops waiting.
func (e *Engine) handleCallback(actor *models.Actor, role Role, cb *tg.CallbackQuery) error {
	act, ok := ParseToken(cb.Data)
	if !ok {
		logger.Debug("unknown_callback_token", "actor", actor.ID, "data", cb.Data)
		return e.client.AnswerCallback(cb.ID, "")
	}

	chatID := cb.From.ID
	msgID := 0
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
		msgID = cb.Message.MessageID
	}

	switch act.Verb {
	case "browse":
		page, err := strconv.Atoi(act.Args[0])
		if err != nil {
			return e.client.AnswerCallback(cb.ID, "")
		}
		text, kb, err := e.board.BrowsePage(page)
		if err != nil {
			return err
		}
		return e.edit(cb, chatID, msgID, text, kb)

	case "view_conf":
		text, kb, err := e.board.ViewConfession(act.Args[0])
		if errors.Is(err, store.ErrNotFound) {
			return e.client.AnswerCallback(cb.ID, "Gone.")
		}
		if err != nil {
			return err
		}
		return e.edit(cb, chatID, msgID, text, kb)

	case "vote_up", "vote_down":
		dir := store.DirUp
		if act.Verb == "vote_down" {
			dir = store.DirDown
		}
		if _, err := e.board.Vote(act.Args[0], actor.ID, dir); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return e.client.AnswerCallback(cb.ID, "Gone.")
			}
			return err
		}
		text, kb, err := e.board.ViewConfession(act.Args[0])
		if err != nil {
			return err
		}
		if err := e.client.EditMessageText(chatID, msgID, text, kb); err != nil {
			logger.Debug("view_refresh_failed", "error", err)
		}
		return e.client.AnswerCallback(cb.ID, "Vote recorded.")

	case "view_com":
		idx, err := strconv.Atoi(act.Args[1])
		if err != nil {
			return e.client.AnswerCallback(cb.ID, "")
		}
		text, kb, err := e.board.ViewComment(act.Args[0], idx)
		if errors.Is(err, store.ErrNotFound) {
			return e.client.AnswerCallback(cb.ID, "No comments.")
		}
		if err != nil {
			return err
		}
		return e.edit(cb, chatID, msgID, text, kb)

	case "cvote_up", "cvote_down":
		dir := store.DirUp
		if act.Verb == "cvote_down" {
			dir = store.DirDown
		}
		cm, err := store.ToggleCommentVote(act.Args[0], actor.ID, dir)
		if errors.Is(err, store.ErrNotFound) {
			return e.client.AnswerCallback(cb.ID, "Gone.")
		}
		if err != nil {
			return err
		}
		if idx, ok := commentIndex(cm); ok {
			if text, kb, rerr := e.board.ViewComment(cm.ConfessionID, idx); rerr == nil {
				if err := e.client.EditMessageText(chatID, msgID, text, kb); err != nil {
					logger.Debug("view_refresh_failed", "error", err)
				}
			}
		}
		return e.client.AnswerCallback(cb.ID, "Vote recorded.")

	case "confess":
		if err := e.startConfession(actor, chatID); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "comment":
		if err := flow.Start(e.flow, actor, chatID, flow.StepComment,
			flow.Draft{ConfessionID: act.Args[0]}, "Send your comment."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "reply":
		if err := flow.Start(e.flow, actor, chatID, flow.StepReply,
			flow.Draft{CommentID: act.Args[0]}, "Send your reply."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "approve", "reject":
		if role != RoleAdmin {
			return e.client.AnswerCallback(cb.ID, "Not allowed.")
		}
		return e.moderate(cb, chatID, msgID, act)

	case "set_nick":
		if err := flow.Start(e.flow, actor, chatID, flow.StepNickname, flow.Draft{}, "Send your new nickname."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")
	case "set_bio":
		if err := flow.Start(e.flow, actor, chatID, flow.StepBio, flow.Draft{}, "Send your new bio."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")
	case "set_emoji":
		if err := flow.Start(e.flow, actor, chatID, flow.StepEmoji, flow.Draft{}, "Send your profile emoji."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "admin_review":
		if role != RoleAdmin {
			return e.client.AnswerCallback(cb.ID, "Not allowed.")
		}
		text, kb, err := e.board.PendingReview()
		if errors.Is(err, store.ErrNotFound) {
			return e.client.AnswerCallback(cb.ID, "Queue is empty.")
		}
		if err != nil {
			return err
		}
		return e.edit(cb, chatID, msgID, text, kb)

	case "admin_broadcast":
		if role != RoleAdmin {
			return e.client.AnswerCallback(cb.ID, "Not allowed.")
		}
		if err := flow.Start(e.flow, actor, chatID, flow.StepBroadcastText, flow.Draft{}, "Send the broadcast text."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "admin_newbutton":
		if role != RoleAdmin {
			return e.client.AnswerCallback(cb.ID, "Not allowed.")
		}
		if err := flow.Start(e.flow, actor, chatID, flow.StepButtonName, flow.Draft{}, "Send the new button's label."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "admin_newchannel":
		if role != RoleAdmin {
			return e.client.AnswerCallback(cb.ID, "Not allowed.")
		}
		if err := flow.Start(e.flow, actor, chatID, flow.StepChannelName, flow.Draft{}, "Send the channel name."); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "relapse":
		owner, err := strconv.ParseInt(act.Args[0], 10, 64)
		if err != nil || owner != actor.ID {
			return e.client.AnswerCallback(cb.ID, "This control is not yours.")
		}
		var rows [][]tg.InlineKeyboardButton
		for _, rc := range reasonCodes {
			rows = append(rows, tg.Row(tg.Btn(rc.Label,
				fmt.Sprintf("reason_%s_%d", rc.Code, owner))))
		}
		if err := e.client.EditMessageText(chatID, msgID, "What happened?", &tg.InlineKeyboardMarkup{InlineKeyboard: rows}); err != nil {
			return err
		}
		return e.client.AnswerCallback(cb.ID, "")

	case "reason":
		owner, err := strconv.ParseInt(act.Args[1], 10, 64)
		if err != nil || owner != actor.ID {
			return e.client.AnswerCallback(cb.ID, "This control is not yours.")
		}
		return e.resetStreak(actor, cb, chatID, msgID, act.Args[0])
	}

	return e.client.AnswerCallback(cb.ID, "")
}

// moderate applies an approve/reject action and advances the review view
// to the next pending item.
func (e *Engine) moderate(cb *tg.CallbackQuery, chatID int64, msgID int, act Action) error {
	id := act.Args[0]
	var ack string
	if act.Verb == "approve" {
		c, err := e.board.Approve(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return e.client.AnswerCallback(cb.ID, "Gone.")
			}
			return err
		}
		ack = fmt.Sprintf("Approved as #%d.", c.PublicID)
	} else {
		if err := e.board.Reject(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return e.client.AnswerCallback(cb.ID, "Gone.")
			}
			return err
		}
		ack = "Rejected."
	}
	text, kb, err := e.board.PendingReview()
	if errors.Is(err, store.ErrNotFound) {
		if err := e.client.EditMessageText(chatID, msgID, "Review queue is empty.", nil); err != nil {
			logger.Debug("view_refresh_failed", "error", err)
		}
		return e.client.AnswerCallback(cb.ID, ack)
	}
	if err != nil {
		return err
	}
	if err := e.client.EditMessageText(chatID, msgID, text, kb); err != nil {
		logger.Debug("view_refresh_failed", "error", err)
	}
	return e.client.AnswerCallback(cb.ID, ack)
}

// resetStreak closes the current streak under the given reason code,
// rolling best-streak forward when the ended streak beat it.
func (e *Engine) resetStreak(actor *models.Actor, cb *tg.CallbackQuery, chatID int64, msgID int, code string) error {
	now := time.Now().UTC()
	days := 0
	if actor.StreakStart > 0 {
		days = int(now.Sub(time.Unix(0, actor.StreakStart)).Hours() / 24)
	}
	if days > actor.BestStreak {
		actor.BestStreak = days
	}
	actor.StreakStart = now.UnixNano()
	if err := store.SaveActor(actor); err != nil {
		return err
	}
	logger.Info("streak_reset", "actor", actor.ID, "reason", code, "days", days)
	text := fmt.Sprintf("Streak of %d days ended (%s). A new one starts now — best is %d days.", days, code, actor.BestStreak)
	if err := e.client.EditMessageText(chatID, msgID, text, nil); err != nil {
		logger.Debug("view_refresh_failed", "error", err)
	}
	return e.client.AnswerCallback(cb.ID, "")
}

// edit replaces the tapped view in place and answers the callback.
func (e *Engine) edit(cb *tg.CallbackQuery, chatID int64, msgID int, text string, kb *tg.InlineKeyboardMarkup) error {
	if msgID != 0 {
		if err := e.client.EditMessageText(chatID, msgID, text, kb); err == nil {
			return e.client.AnswerCallback(cb.ID, "")
		}
	}
	if _, err := e.client.SendMessage(chatID, text, kb); err != nil {
		return err
	}
	return e.client.AnswerCallback(cb.ID, "")
}

// commentIndex locates a comment's position among its siblings for the
// one-per-page detail view.
func commentIndex(cm *models.Comment) (int, bool) {
	cs, err := store.ListComments(cm.ConfessionID)
	if err != nil {
		return 0, false
	}
	for i, c := range cs {
		if c.ID == cm.ID {
			return i, true
		}
	}
	return 0, false
}
