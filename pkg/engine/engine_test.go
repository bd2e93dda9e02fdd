package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confessd/pkg/board"
	"confessd/pkg/config"
	"confessd/pkg/logger"
	"confessd/pkg/models"
	"confessd/pkg/outbox"
	"confessd/pkg/store"
	"confessd/pkg/tg"
)

type fakeClient struct {
	sends   []fakeSend
	edits   []fakeEdit
	answers []string
}

type fakeSend struct {
	chatID int64
	text   string
	kb     *tg.InlineKeyboardMarkup
}

type fakeEdit struct {
	chatID int64
	msgID  int
	text   string
}

func (f *fakeClient) SendMessage(chatID int64, text string, kb *tg.InlineKeyboardMarkup) (int, error) {
	f.sends = append(f.sends, fakeSend{chatID, text, kb})
	return len(f.sends), nil
}

func (f *fakeClient) EditMessageText(chatID int64, msgID int, text string, kb *tg.InlineKeyboardMarkup) error {
	f.edits = append(f.edits, fakeEdit{chatID, msgID, text})
	return nil
}

func (f *fakeClient) AnswerCallback(_, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeClient) lastSend() string {
	if len(f.sends) == 0 {
		return ""
	}
	return f.sends[len(f.sends)-1].text
}

func (f *fakeClient) lastAnswer() string {
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

const adminID = int64(9000)

func newTestEngine(t *testing.T) (*Engine, *fakeClient) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "db")))
	t.Cleanup(func() { store.Close() })

	cfg := config.Defaults()
	cfg.Bot.AdminIDs = []int64{adminID}
	cfg.Bot.WebhookBudget = config.Duration(2 * time.Second)

	client := &fakeClient{}
	out := outbox.New(64, 100, 10, client)
	b := board.New(cfg, out)
	return New(cfg, client, b, out), client
}

func msgUpdate(updateID, actorID int64, text string) *tg.Update {
	return &tg.Update{
		UpdateID: updateID,
		Message: &tg.Message{
			From: &tg.User{ID: actorID, FirstName: "Abel"},
			Chat: tg.Chat{ID: actorID},
			Text: text,
		},
	}
}

func cbUpdate(updateID, actorID int64, data string) *tg.Update {
	return &tg.Update{
		UpdateID: updateID,
		CallbackQuery: &tg.CallbackQuery{
			ID:      fmt.Sprintf("cb-%d", updateID),
			From:    &tg.User{ID: actorID, FirstName: "Abel"},
			Message: &tg.Message{MessageID: 5, Chat: tg.Chat{ID: actorID}},
			Data:    data,
		},
	}
}

func TestParseToken(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		verb string
		args []string
	}{
		{"confess", true, "confess", nil},
		{"admin_review", true, "admin_review", nil},
		{"browse_3", true, "browse", []string{"3"}},
		{"vote_up_00000000000000000001-000001", true, "vote_up", []string{"00000000000000000001-000001"}},
		{"vote_down_abc", true, "vote_down", []string{"abc"}},
		{"cvote_up_deadbeef", true, "cvote_up", []string{"deadbeef"}},
		{"view_conf_x", true, "view_conf", []string{"x"}},
		{"view_com_conf-1_2", true, "view_com", []string{"conf-1", "2"}},
		{"reason_stress_42", true, "reason", []string{"stress", "42"}},
		{"relapse_42", true, "relapse", []string{"42"}},
		{"approve_id1", true, "approve", []string{"id1"}},
		{"vote_up_", false, "", nil},
		{"view_com_onlyone", false, "", nil},
		{"nonsense", false, "", nil},
		{"", false, "", nil},
	}
	for _, c := range cases {
		act, ok := ParseToken(c.in)
		if ok != c.ok {
			t.Fatalf("ParseToken(%q) ok=%v, want %v", c.in, ok, c.ok)
		}
		if !ok {
			continue
		}
		assert.Equal(t, c.verb, act.Verb, "token %q", c.in)
		assert.Equal(t, c.args, act.Args, "token %q", c.in)
	}
}

func TestRoleFor(t *testing.T) {
	cfg := config.Defaults()
	cfg.Bot.AdminIDs = []int64{7}
	assert.Equal(t, RoleAdmin, RoleFor(cfg, 7))
	assert.Equal(t, RoleMember, RoleFor(cfg, 8))
	assert.Equal(t, "admin", RoleAdmin.String())
	assert.Equal(t, "member", RoleMember.String())
}

func TestGuardReturnsAtBudget(t *testing.T) {
	logger.Init()
	release := make(chan struct{})
	start := time.Now()
	Guard(50*time.Millisecond, 1, func() error {
		<-release
		return nil
	})
	elapsed := time.Since(start)
	close(release)
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Fatalf("guard returned after %v, want ~50ms", elapsed)
	}
}

func TestGuardAbsorbsFastResult(t *testing.T) {
	logger.Init()
	start := time.Now()
	Guard(5*time.Second, 1, func() error { return nil })
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("guard waited %v for a fast fn", elapsed)
	}
}

func TestWebhookDedup(t *testing.T) {
	eng, client := newTestEngine(t)

	body, err := json.Marshal(msgUpdate(100, 1, "/start"))
	require.NoError(t, err)

	eng.HandleWebhook(body)
	require.Len(t, client.sends, 1)
	assert.Contains(t, client.lastSend(), "Welcome")

	// redelivery of the same update is swallowed without side effects
	eng.HandleWebhook(body)
	assert.Len(t, client.sends, 1)
}

func TestWebhookGarbageIgnored(t *testing.T) {
	eng, client := newTestEngine(t)
	eng.HandleWebhook([]byte("{not json"))
	assert.Empty(t, client.sends)
}

func TestActiveStepCapturesCommands(t *testing.T) {
	eng, client := newTestEngine(t)

	require.NoError(t, eng.Process(msgUpdate(1, 1, "🙏 Confess")))
	require.NoError(t, eng.Process(msgUpdate(2, 1, "/start")))

	// the step consumed the input as confession text; no welcome fired
	for _, s := range client.sends {
		assert.NotContains(t, s.text, "Welcome")
	}
	assert.Contains(t, client.lastSend(), "awaits moderation")

	actor, err := store.GetActor(1)
	require.NoError(t, err)
	assert.False(t, actor.AdminState.Active())

	c, err := store.FirstPending()
	require.NoError(t, err)
	assert.Equal(t, "/start", c.Body)
}

func TestStartNormalAfterCancel(t *testing.T) {
	eng, client := newTestEngine(t)

	require.NoError(t, eng.Process(msgUpdate(1, 1, "🙏 Confess")))
	require.NoError(t, eng.Process(msgUpdate(2, 1, "cancel")))
	assert.Equal(t, "Cancelled.", client.lastSend())

	require.NoError(t, eng.Process(msgUpdate(3, 1, "/start")))
	assert.Contains(t, client.lastSend(), "Welcome")
}

func TestWelcomeOffersConfessControl(t *testing.T) {
	eng, client := newTestEngine(t)

	require.NoError(t, eng.Process(msgUpdate(1, 1, "/start")))
	require.Len(t, client.sends, 1)
	require.NotNil(t, client.sends[0].kb)
	assert.Equal(t, "confess", client.sends[0].kb.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, eng.Process(cbUpdate(2, 1, "confess")))
	assert.Contains(t, client.lastSend(), "Send your confession")

	actor, err := store.GetActor(1)
	require.NoError(t, err)
	assert.Equal(t, "confession_text", actor.AdminState.Step)
}

func TestBannedActorSilent(t *testing.T) {
	eng, client := newTestEngine(t)
	require.NoError(t, store.SaveActor(&models.Actor{ID: 1, Banned: true}))

	require.NoError(t, eng.Process(msgUpdate(1, 1, "/start")))
	assert.Empty(t, client.sends)
}

func TestUnmatchedTextSilent(t *testing.T) {
	eng, client := newTestEngine(t)
	require.NoError(t, eng.Process(msgUpdate(1, 1, "random chatter")))
	assert.Empty(t, client.sends)
}

func TestAdminMenuGate(t *testing.T) {
	eng, client := newTestEngine(t)

	require.NoError(t, eng.Process(msgUpdate(1, 1, "/admin")))
	assert.Equal(t, "Not allowed.", client.lastSend())

	require.NoError(t, eng.Process(msgUpdate(2, adminID, "/admin")))
	assert.Contains(t, client.lastSend(), "pending")
}

func TestMenuLabelOverride(t *testing.T) {
	eng, client := newTestEngine(t)
	require.NoError(t, store.SetConfigEntry("label_confess", "Spill it"))

	// default label no longer matches
	require.NoError(t, eng.Process(msgUpdate(1, 1, "🙏 Confess")))
	assert.Empty(t, client.sends)

	require.NoError(t, eng.Process(msgUpdate(2, 1, "Spill it")))
	assert.Contains(t, client.lastSend(), "Send your confession")
}

func TestRegisteredButtonContent(t *testing.T) {
	eng, client := newTestEngine(t)
	require.NoError(t, store.SaveButton(models.Button{
		Label:   "FAQ",
		Content: "Everything you asked.",
		Links:   []models.Link{{Label: "Site", URL: "https://example.com"}},
	}))

	require.NoError(t, eng.Process(msgUpdate(1, 1, "FAQ")))
	require.Len(t, client.sends, 1)
	assert.Equal(t, "Everything you asked.", client.sends[0].text)
	require.NotNil(t, client.sends[0].kb)
	assert.Equal(t, "https://example.com", client.sends[0].kb.InlineKeyboard[0][0].URL)
}

func TestSubmitApproveRoundTrip(t *testing.T) {
	eng, client := newTestEngine(t)

	// member starts the confession flow from the menu and submits
	require.NoError(t, eng.Process(msgUpdate(1, 1, "🙏 Confess")))
	require.NoError(t, eng.Process(msgUpdate(2, 1, "I broke the build on a Friday.")))
	assert.Contains(t, client.lastSend(), "awaits moderation")

	pending, err := store.FirstPending()
	require.NoError(t, err)

	// admin reviews and approves
	require.NoError(t, eng.Process(cbUpdate(3, adminID, "admin_review")))
	require.NotEmpty(t, client.edits)
	assert.Contains(t, client.edits[len(client.edits)-1].text, "Friday")

	require.NoError(t, eng.Process(cbUpdate(4, adminID, "approve_"+pending.ID)))
	assert.Contains(t, client.lastAnswer(), "Approved as #1000")

	got, err := store.GetConfession(pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, int64(1000), got.PublicID)

	author, err := store.GetActor(1)
	require.NoError(t, err)
	assert.Equal(t, eng.cfg.Board.ApproveAward, author.Profile.Aura)

	// the queue is now empty
	require.NoError(t, eng.Process(cbUpdate(5, adminID, "admin_review")))
	assert.Equal(t, "Queue is empty.", client.lastAnswer())
}

func TestRejectLeavesNoTrace(t *testing.T) {
	eng, client := newTestEngine(t)

	require.NoError(t, eng.Process(msgUpdate(1, 1, "🙏 Confess")))
	require.NoError(t, eng.Process(msgUpdate(2, 1, "regret")))
	pending, err := store.FirstPending()
	require.NoError(t, err)

	require.NoError(t, eng.Process(cbUpdate(3, adminID, "reject_"+pending.ID)))
	assert.Equal(t, "Rejected.", client.lastAnswer())

	_, err = store.GetConfession(pending.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the rejected item consumed no public identifier
	require.NoError(t, eng.Process(msgUpdate(4, 1, "🙏 Confess")))
	require.NoError(t, eng.Process(msgUpdate(5, 1, "second try")))
	next, err := store.FirstPending()
	require.NoError(t, err)
	require.NoError(t, eng.Process(cbUpdate(6, adminID, "approve_"+next.ID)))
	got, err := store.GetConfession(next.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.PublicID)
}

func TestModerationVerbsRequireAdmin(t *testing.T) {
	eng, client := newTestEngine(t)

	for _, data := range []string{"approve_x", "reject_x", "admin_review", "admin_broadcast", "admin_newbutton", "admin_newchannel"} {
		require.NoError(t, eng.Process(cbUpdate(time.Now().UnixNano(), 1, data)))
		assert.Equal(t, "Not allowed.", client.lastAnswer(), "verb %s", data)
	}
}

func TestVoteCallbackRefreshesView(t *testing.T) {
	eng, client := newTestEngine(t)

	c := &models.Confession{Author: 2, AuthorName: "B", Body: "x", Status: models.StatusPending}
	require.NoError(t, store.SaveConfession(c))
	_, err := store.ApproveConfession(c.ID, 1000)
	require.NoError(t, err)

	require.NoError(t, eng.Process(cbUpdate(1, 1, "vote_up_"+c.ID)))
	assert.Equal(t, "Vote recorded.", client.lastAnswer())

	got, err := store.GetConfession(c.ID)
	require.NoError(t, err)
	require.Len(t, got.Upvotes, 1)
	assert.Equal(t, int64(1), got.Upvotes[0])

	// switching direction replaces, never stacks
	require.NoError(t, eng.Process(cbUpdate(2, 1, "vote_down_"+c.ID)))
	got, err = store.GetConfession(c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Upvotes)
	require.Len(t, got.Downvotes, 1)
}

func TestStreakControlsAreOwnerScoped(t *testing.T) {
	eng, client := newTestEngine(t)

	// actor 2 taps actor 1's relapse control
	require.NoError(t, eng.Process(cbUpdate(1, 2, "relapse_1")))
	assert.Equal(t, "This control is not yours.", client.lastAnswer())

	// reason tokens carry the owner too
	require.NoError(t, eng.Process(cbUpdate(2, 2, "reason_stress_1")))
	assert.Equal(t, "This control is not yours.", client.lastAnswer())

	// the owner gets the reason keyboard, then the reset
	require.NoError(t, eng.Process(cbUpdate(3, 1, "relapse_1")))
	require.NotEmpty(t, client.edits)
	assert.Equal(t, "What happened?", client.edits[len(client.edits)-1].text)

	require.NoError(t, eng.Process(cbUpdate(4, 1, "reason_stress_1")))
	got, err := store.GetActor(1)
	require.NoError(t, err)
	assert.Greater(t, got.StreakStart, int64(0))
}

func TestUnknownCallbackAnswered(t *testing.T) {
	eng, client := newTestEngine(t)
	require.NoError(t, eng.Process(cbUpdate(1, 1, "bogus_token")))
	require.Len(t, client.answers, 1)
	assert.Equal(t, "", client.answers[0])
}
