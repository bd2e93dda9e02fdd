// Package board implements the moderated confession board: the
// submission queue, the approval pipeline with sequential public
// identifiers, exclusive vote toggles, paginated browsing and one-level
// threaded comments.
package board

import (
	"errors"
	"fmt"
	"time"

	"confessd/pkg/config"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/outbox"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

// Service owns status/identifier/vote mutations on confessions and
// comments. All other components go through it.
type Service struct {
	cfg *config.Config
	out *outbox.Queue
}

// New builds a board service. out may be nil in tests that exercise no
// notifications.
func New(cfg *config.Config, out *outbox.Queue) *Service {
	return &Service{cfg: cfg, out: out}
}

// Submit creates a pending confession tagged with the actor's display
// name at posting time. Nothing the actor does alters it pre-approval.
func (s *Service) Submit(actor *models.Actor, text string) (*models.Confession, error) {
	c := &models.Confession{
		Author:     actor.ID,
		AuthorName: actor.Name(),
		Body:       text,
		Status:     models.StatusPending,
	}
	if err := store.SaveConfession(c); err != nil {
		return nil, err
	}
	logger.Info("confession_submitted", "id", c.ID, "actor", actor.ID)
	return c, nil
}

// Approve transitions one pending confession to approved, assigns its
// public identifier and awards the author the fixed aura increment. The
// author is told best-effort through the outbox.
func (s *Service) Approve(id string) (*models.Confession, error) {
	c, err := store.ApproveConfession(id, s.cfg.Board.SeqBase)
	if err != nil {
		return nil, err
	}
	store.ConfessionsApproved.Inc()
	if err := store.AwardAura(c.Author, s.cfg.Board.ApproveAward); err != nil {
		// the approval already happened; a missing author record is not
		// worth failing the admin action over
		logger.Warn("approve_award_failed", "id", id, "author", c.Author, "error", err)
	}
	s.notify(c.Author, fmt.Sprintf("Your confession was approved and published as #%d. +%d aura!", c.PublicID, s.cfg.Board.ApproveAward))
	return c, nil
}

// Reject deletes a pending confession. It never receives an identifier.
func (s *Service) Reject(id string) error {
	c, err := store.GetConfession(id)
	if err != nil {
		return err
	}
	if c.Status != models.StatusPending {
		return fmt.Errorf("confession %s is not pending", id)
	}
	if err := store.DeleteConfession(id); err != nil {
		return err
	}
	store.ConfessionsRejected.Inc()
	logger.Info("confession_rejected", "id", id)
	return nil
}

// Vote applies the exclusive up/down toggle for one voter.
func (s *Service) Vote(id string, voter int64, dir string) (*models.Confession, error) {
	return store.ToggleConfessionVote(id, voter, dir)
}

// Comment adds a comment, awards the smaller aura increment, and makes a
// best-effort attempt to tell the confession's author when the commenter
// is someone else.
func (s *Service) Comment(actor *models.Actor, confID, text string) (*models.Comment, error) {
	conf, err := store.GetConfession(confID)
	if err != nil {
		return nil, err
	}
	cm := &models.Comment{
		ConfessionID: confID,
		Author:       actor.ID,
		AuthorName:   actor.Name(),
		Body:         text,
	}
	if err := store.SaveComment(cm); err != nil {
		return nil, err
	}
	if err := store.AwardAura(actor.ID, s.cfg.Board.CommentAward); err != nil {
		logger.Warn("comment_award_failed", "actor", actor.ID, "error", err)
	}
	if conf.Author != actor.ID {
		s.notify(conf.Author, fmt.Sprintf("%s commented on your confession #%d: %s", cm.AuthorName, conf.PublicID, text))
	}
	logger.Info("comment_added", "confession", confID, "comment", cm.ID, "actor", actor.ID)
	return cm, nil
}

// ReplyTo appends a one-level reply to a comment. Replying awards no aura.
func (s *Service) ReplyTo(actor *models.Actor, commentID, text string) (*models.Comment, error) {
	r := models.Reply{
		AuthorName: actor.Name(),
		Body:       text,
		CreatedTS:  time.Now().UTC().UnixNano(),
	}
	cm, err := store.AppendReply(commentID, r)
	if err != nil {
		return nil, err
	}
	logger.Info("reply_added", "comment", commentID, "actor", actor.ID)
	return cm, nil
}

// notify enqueues a best-effort message to one actor. Queue pressure and
// delivery failure are both swallowed.
func (s *Service) notify(actorID int64, text string) {
	if s.out == nil {
		return
	}
	if err := s.out.Enqueue(outbox.Item{ChatID: actorID, Text: text}); err != nil &&
		!errors.Is(err, outbox.ErrQueueClosed) {
		logger.Warn("notify_enqueue_failed", "actor", actorID, "error", err)
	}
}

// PendingReview fetches one confession awaiting moderation and its
// approve/reject controls. Returns store.ErrNotFound when the queue is
// empty.
func (s *Service) PendingReview() (string, *tg.InlineKeyboardMarkup, error) {
	c, err := store.FirstPending()
	if err != nil {
		return "", nil, err
	}
	n, err := store.CountPending()
	if err != nil {
		return "", nil, err
	}
	text := fmt.Sprintf("Pending confession by %s (%d in queue):\n\n%s", c.AuthorName, n, c.Body)
	kb := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("✅ Approve", "approve_"+c.ID), tg.Btn("❌ Reject", "reject_"+c.ID)),
	}}
	return text, kb, nil
}
