package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"confessd/pkg/models"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

// BrowsePage renders one page of approved confessions, newest-first,
// with previous/next controls only when a prior/further page exists.
func (s *Service) BrowsePage(page int) (string, *tg.InlineKeyboardMarkup, error) {
	if page < 0 {
		page = 0
	}
	size := s.cfg.Board.PageSize
	items, total, err := store.ListApproved(page, size)
	if err != nil {
		return "", nil, err
	}
	if total == 0 {
		return "No confessions yet. Be the first!", nil, nil
	}
	if len(items) == 0 {
		// past the last page; show the final one instead
		page = (total - 1) / size
		items, total, err = store.ListApproved(page, size)
		if err != nil {
			return "", nil, err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Confessions — page %d of %d\n\n", page+1, (total+size-1)/size)
	var rows [][]tg.InlineKeyboardButton
	for _, c := range items {
		fmt.Fprintf(&b, "#%d — %s (%s)\n%s\n\n", c.PublicID, c.AuthorName, postedAgo(c.ApprovedTS), snippet(c.Body, 80))
		rows = append(rows, tg.Row(tg.Btn(fmt.Sprintf("#%d", c.PublicID), "view_conf_"+c.ID)))
	}
	var nav []tg.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tg.Btn("« Prev", fmt.Sprintf("browse_%d", page-1)))
	}
	if (page+1)*size < total {
		nav = append(nav, tg.Btn("Next »", fmt.Sprintf("browse_%d", page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return b.String(), &tg.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// ViewConfession renders one confession with live tallies, comment count
// and vote/comment controls.
func (s *Service) ViewConfession(id string) (string, *tg.InlineKeyboardMarkup, error) {
	c, err := store.GetConfession(id)
	if err != nil {
		return "", nil, err
	}
	nComments, err := store.CountComments(id)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Confession #%d by %s (%s)\n\n%s\n\n", c.PublicID, c.AuthorName, postedAgo(c.ApprovedTS), c.Body)
	fmt.Fprintf(&b, "👍 %s   👎 %s   💬 %s", humanize.Comma(int64(len(c.Upvotes))), humanize.Comma(int64(len(c.Downvotes))), humanize.Comma(int64(nComments)))

	rows := [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("👍", "vote_up_"+c.ID), tg.Btn("👎", "vote_down_"+c.ID)),
		tg.Row(tg.Btn("💬 Comment", "comment_"+c.ID)),
	}
	if nComments > 0 {
		rows = append(rows, tg.Row(tg.Btn("View comments", "view_com_"+c.ID+"_0")))
	}
	rows = append(rows, tg.Row(tg.Btn("« Back", "browse_0")))
	return b.String(), &tg.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// ViewComment renders one comment of a confession (the detail view pages
// one comment at a time for a swipe-like UI), its tallies and inline
// replies.
func (s *Service) ViewComment(confID string, idx int) (string, *tg.InlineKeyboardMarkup, error) {
	cs, err := store.ListComments(confID)
	if err != nil {
		return "", nil, err
	}
	if len(cs) == 0 {
		return "", nil, store.ErrNotFound
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cs) {
		idx = len(cs) - 1
	}
	cm := cs[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "Comment %d of %d by %s (%s)\n\n%s\n\n", idx+1, len(cs), cm.AuthorName, postedAgo(cm.CreatedTS), cm.Body)
	fmt.Fprintf(&b, "👍 %s   👎 %s\n", humanize.Comma(int64(len(cm.Upvotes))), humanize.Comma(int64(len(cm.Downvotes))))
	for _, r := range cm.Replies {
		fmt.Fprintf(&b, "\n↳ %s: %s", r.AuthorName, r.Body)
	}

	rows := [][]tg.InlineKeyboardButton{
		tg.Row(tg.Btn("👍", "cvote_up_"+cm.ID), tg.Btn("👎", "cvote_down_"+cm.ID)),
		tg.Row(tg.Btn("↩️ Reply", "reply_"+cm.ID)),
	}
	var nav []tg.InlineKeyboardButton
	if idx > 0 {
		nav = append(nav, tg.Btn("« Prev", fmt.Sprintf("view_com_%s_%d", confID, idx-1)))
	}
	if idx+1 < len(cs) {
		nav = append(nav, tg.Btn("Next »", fmt.Sprintf("view_com_%s_%d", confID, idx+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tg.Row(tg.Btn("« Back", "view_conf_"+confID)))
	return b.String(), &tg.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// ProfileView renders an actor's profile card.
func ProfileView(a *models.Actor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", a.Profile.Emoji, a.Name())
	if a.Profile.Bio != "" {
		fmt.Fprintf(&b, "%s\n", a.Profile.Bio)
	}
	fmt.Fprintf(&b, "\n✨ Aura: %s", humanize.Comma(a.Profile.Aura))
	if a.StreakStart > 0 {
		days := int(time.Since(time.Unix(0, a.StreakStart)).Hours() / 24)
		fmt.Fprintf(&b, "\n🔥 Streak: %d days (best %d)", days, a.BestStreak)
	}
	return b.String()
}

func postedAgo(ts int64) string {
	if ts == 0 {
		return "just now"
	}
	return humanize.Time(time.Unix(0, ts))
}

func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
