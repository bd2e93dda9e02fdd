package board

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confessd/pkg/config"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "db")))
	t.Cleanup(func() { store.Close() })
	return New(config.Defaults(), nil)
}

func approveN(t *testing.T, s *Service, n int) []*models.Confession {
	t.Helper()
	actor := &models.Actor{ID: 1, DisplayName: "Abel"}
	require.NoError(t, store.SaveActor(actor))
	var out []*models.Confession
	for i := 0; i < n; i++ {
		c, err := s.Submit(actor, fmt.Sprintf("confession %d", i))
		require.NoError(t, err)
		c, err = s.Approve(c.ID)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestBrowseEmptyBoard(t *testing.T) {
	s := newTestService(t)
	text, kb, err := s.BrowsePage(0)
	require.NoError(t, err)
	assert.Nil(t, kb)
	assert.Contains(t, text, "No confessions yet")
}

func TestBrowseNavControls(t *testing.T) {
	s := newTestService(t)
	approveN(t, s, 23) // page size 10: three pages

	hasNav := func(kb *tg.InlineKeyboardMarkup, label string) bool {
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				if strings.Contains(btn.Text, label) {
					return true
				}
			}
		}
		return false
	}

	_, kb, err := s.BrowsePage(0)
	require.NoError(t, err)
	assert.False(t, hasNav(kb, "Prev"), "first page shows a prev control")
	assert.True(t, hasNav(kb, "Next"))

	_, kb, err = s.BrowsePage(1)
	require.NoError(t, err)
	assert.True(t, hasNav(kb, "Prev"))
	assert.True(t, hasNav(kb, "Next"))

	text, kb, err := s.BrowsePage(2)
	require.NoError(t, err)
	assert.True(t, hasNav(kb, "Prev"))
	assert.False(t, hasNav(kb, "Next"), "last page shows a next control")
	assert.Contains(t, text, "page 3 of 3")

	// past-the-end lands on the final page
	text, _, err = s.BrowsePage(99)
	require.NoError(t, err)
	assert.Contains(t, text, "page 3 of 3")
}

func TestBrowseNewestFirst(t *testing.T) {
	s := newTestService(t)
	cs := approveN(t, s, 3)

	text, _, err := s.BrowsePage(0)
	require.NoError(t, err)
	newest := fmt.Sprintf("#%d", cs[2].PublicID)
	oldest := fmt.Sprintf("#%d", cs[0].PublicID)
	assert.Less(t, strings.Index(text, newest), strings.Index(text, oldest))
}

func TestViewConfessionControls(t *testing.T) {
	s := newTestService(t)
	c := approveN(t, s, 1)[0]

	text, kb, err := s.ViewConfession(c.ID)
	require.NoError(t, err)
	assert.Contains(t, text, fmt.Sprintf("Confession #%d", c.PublicID))
	assert.Contains(t, text, "👍 0")
	// no comments yet: no comment-view control
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			assert.NotContains(t, btn.CallbackData, "view_com_")
		}
	}

	actor := &models.Actor{ID: 2, DisplayName: "Bea"}
	require.NoError(t, store.SaveActor(actor))
	_, err = s.Comment(actor, c.ID, "first!")
	require.NoError(t, err)

	text, kb, err = s.ViewConfession(c.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "💬 1")
	found := false
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData == "view_com_"+c.ID+"_0" {
				found = true
			}
		}
	}
	assert.True(t, found, "comment-view control missing")
}

func TestViewCommentPaging(t *testing.T) {
	s := newTestService(t)
	c := approveN(t, s, 1)[0]
	actor := &models.Actor{ID: 2, DisplayName: "Bea"}
	require.NoError(t, store.SaveActor(actor))
	for i := 0; i < 3; i++ {
		_, err := s.Comment(actor, c.ID, fmt.Sprintf("take %d", i))
		require.NoError(t, err)
	}

	text, _, err := s.ViewComment(c.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Comment 1 of 3")

	// indexes clamp instead of failing
	text, _, err = s.ViewComment(c.ID, 99)
	require.NoError(t, err)
	assert.Contains(t, text, "Comment 3 of 3")

	_, _, err = s.ViewComment("no-such", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestViewCommentShowsReplies(t *testing.T) {
	s := newTestService(t)
	c := approveN(t, s, 1)[0]
	actor := &models.Actor{ID: 2, DisplayName: "Bea"}
	require.NoError(t, store.SaveActor(actor))
	cm, err := s.Comment(actor, c.ID, "hot take")
	require.NoError(t, err)
	_, err = s.ReplyTo(actor, cm.ID, "cold reply")
	require.NoError(t, err)

	text, _, err := s.ViewComment(c.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "↳ Bea: cold reply")
}

func TestCommentAwardsAura(t *testing.T) {
	s := newTestService(t)
	c := approveN(t, s, 1)[0]
	actor := &models.Actor{ID: 2, DisplayName: "Bea"}
	require.NoError(t, store.SaveActor(actor))

	_, err := s.Comment(actor, c.ID, "nice")
	require.NoError(t, err)

	got, err := store.GetActor(2)
	require.NoError(t, err)
	assert.Equal(t, s.cfg.Board.CommentAward, got.Profile.Aura)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("short", 80))
	long := strings.Repeat("я", 100)
	got := snippet(long, 80)
	assert.Equal(t, 81, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, "a b", snippet("a\nb", 80))
}
