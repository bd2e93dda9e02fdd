package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"confessd/pkg/logger"
	"confessd/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	dir := filepath.Join(t.TempDir(), "db")
	if err := Open(dir); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Fatalf("store.Close: %v", err)
		}
	})
}

func TestDedupIdempotence(t *testing.T) {
	openTestStore(t)

	if err := InsertDedupMarker(42); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := InsertDedupMarker(42)
	if !errors.Is(err, ErrDupUpdate) {
		t.Fatalf("second insert: want ErrDupUpdate, got %v", err)
	}
	// a different identifier is unaffected
	if err := InsertDedupMarker(43); err != nil {
		t.Fatalf("unrelated insert: %v", err)
	}
}

func TestDedupConcurrent(t *testing.T) {
	openTestStore(t)

	const n = 16
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errs <- InsertDedupMarker(777) }()
	}
	firsts := 0
	for i := 0; i < n; i++ {
		err := <-errs
		if err == nil {
			firsts++
		} else if !errors.Is(err, ErrDupUpdate) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if firsts != 1 {
		t.Fatalf("want exactly 1 successful insert, got %d", firsts)
	}
}

func TestActorUpsertAndAura(t *testing.T) {
	openTestStore(t)

	if _, err := GetActor(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown actor, got %v", err)
	}
	a := &models.Actor{ID: 1, DisplayName: "Abel"}
	if err := SaveActor(a); err != nil {
		t.Fatalf("SaveActor: %v", err)
	}
	if err := AwardAura(1, 10); err != nil {
		t.Fatalf("AwardAura: %v", err)
	}
	if err := AwardAura(1, 2); err != nil {
		t.Fatalf("AwardAura: %v", err)
	}
	got, err := GetActor(1)
	if err != nil {
		t.Fatalf("GetActor: %v", err)
	}
	if got.Profile.Aura != 12 {
		t.Fatalf("aura = %d, want 12", got.Profile.Aura)
	}
}

func TestVoteExclusivity(t *testing.T) {
	openTestStore(t)

	c := &models.Confession{Author: 1, AuthorName: "Abel", Body: "hello", Status: models.StatusPending}
	if err := SaveConfession(c); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}

	seq := []string{DirUp, DirUp, DirDown, DirUp, DirDown, DirDown}
	for _, dir := range seq {
		got, err := ToggleConfessionVote(c.ID, 7, dir)
		if err != nil {
			t.Fatalf("ToggleConfessionVote(%s): %v", dir, err)
		}
		inUp := contains(got.Upvotes, 7)
		inDown := contains(got.Downvotes, 7)
		if inUp && inDown {
			t.Fatalf("voter in both sets after %s", dir)
		}
		if !inUp && !inDown {
			t.Fatalf("voter in neither set after %s", dir)
		}
		if dir == DirUp && !inUp {
			t.Fatalf("voter missing from upvotes after up")
		}
		if dir == DirDown && !inDown {
			t.Fatalf("voter missing from downvotes after down")
		}
		if len(got.Upvotes)+len(got.Downvotes) != 1 {
			t.Fatalf("vote sets grew: up=%d down=%d", len(got.Upvotes), len(got.Downvotes))
		}
	}
}

func TestApprovalMonotonicity(t *testing.T) {
	openTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		c := &models.Confession{Author: 1, AuthorName: "Abel", Body: "x", Status: models.StatusPending}
		if err := SaveConfession(c); err != nil {
			t.Fatalf("SaveConfession: %v", err)
		}
		ids = append(ids, c.ID)
	}

	// reject the middle one: it must never receive an identifier
	if err := DeleteConfession(ids[1]); err != nil {
		t.Fatalf("DeleteConfession: %v", err)
	}

	first, err := ApproveConfession(ids[0], 1000)
	if err != nil {
		t.Fatalf("ApproveConfession: %v", err)
	}
	second, err := ApproveConfession(ids[2], 1000)
	if err != nil {
		t.Fatalf("ApproveConfession: %v", err)
	}
	if first.PublicID != 1000 {
		t.Fatalf("first public id = %d, want 1000", first.PublicID)
	}
	if second.PublicID != 1001 {
		t.Fatalf("second public id = %d, want 1001", second.PublicID)
	}

	// approving an already-approved item is rejected
	if _, err := ApproveConfession(ids[0], 1000); err == nil {
		t.Fatalf("re-approval should fail")
	}
}

func TestListApprovedPagination(t *testing.T) {
	openTestStore(t)

	for i := 0; i < 23; i++ {
		c := &models.Confession{Author: 1, AuthorName: "A", Body: "x", Status: models.StatusPending}
		if err := SaveConfession(c); err != nil {
			t.Fatalf("SaveConfession: %v", err)
		}
		if _, err := ApproveConfession(c.ID, 1000); err != nil {
			t.Fatalf("ApproveConfession: %v", err)
		}
	}

	page0, total, err := ListApproved(0, 10)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	if total != 23 || len(page0) != 10 {
		t.Fatalf("page0: total=%d len=%d", total, len(page0))
	}
	// newest-first: the last approved item leads
	if page0[0].PublicID != 1022 {
		t.Fatalf("page0[0].PublicID = %d, want 1022", page0[0].PublicID)
	}
	page2, _, err := ListApproved(2, 10)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	if len(page2) != 3 {
		t.Fatalf("page2 len = %d, want 3", len(page2))
	}
	past, _, err := ListApproved(3, 10)
	if err != nil {
		t.Fatalf("ListApproved: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("past-the-end page len = %d, want 0", len(past))
	}
}

func TestFirstPendingSkipsApproved(t *testing.T) {
	openTestStore(t)

	if _, err := FirstPending(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty queue: want ErrNotFound, got %v", err)
	}
	a := &models.Confession{Author: 1, AuthorName: "A", Body: "first", Status: models.StatusPending}
	if err := SaveConfession(a); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}
	b := &models.Confession{Author: 2, AuthorName: "B", Body: "second", Status: models.StatusPending}
	if err := SaveConfession(b); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}
	if _, err := ApproveConfession(a.ID, 1000); err != nil {
		t.Fatalf("ApproveConfession: %v", err)
	}
	got, err := FirstPending()
	if err != nil {
		t.Fatalf("FirstPending: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("FirstPending = %s, want %s", got.ID, b.ID)
	}
}

func TestCommentsAndReplies(t *testing.T) {
	openTestStore(t)

	c := &models.Confession{Author: 1, AuthorName: "A", Body: "x", Status: models.StatusApproved}
	if err := SaveConfession(c); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}
	cm := &models.Comment{ConfessionID: c.ID, Author: 2, AuthorName: "B", Body: "nice"}
	if err := SaveComment(cm); err != nil {
		t.Fatalf("SaveComment: %v", err)
	}

	got, err := GetComment(cm.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if got.Body != "nice" || got.ConfessionID != c.ID {
		t.Fatalf("unexpected comment: %+v", got)
	}

	if _, err := ToggleCommentVote(cm.ID, 9, DirDown); err != nil {
		t.Fatalf("ToggleCommentVote: %v", err)
	}
	if _, err := AppendReply(cm.ID, models.Reply{AuthorName: "C", Body: "agreed"}); err != nil {
		t.Fatalf("AppendReply: %v", err)
	}
	got, err = GetComment(cm.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if len(got.Downvotes) != 1 || len(got.Replies) != 1 {
		t.Fatalf("down=%d replies=%d, want 1/1", len(got.Downvotes), len(got.Replies))
	}

	// deleting the confession takes its comments with it
	if err := DeleteConfession(c.ID); err != nil {
		t.Fatalf("DeleteConfession: %v", err)
	}
	if _, err := GetComment(cm.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("comment should be gone, got %v", err)
	}
}

func TestButtonAndChannelConflicts(t *testing.T) {
	openTestStore(t)

	b := models.Button{Label: "FAQ", Content: "answers"}
	if err := SaveButton(b); err != nil {
		t.Fatalf("SaveButton: %v", err)
	}
	if err := SaveButton(b); !errors.Is(err, ErrLabelTaken) {
		t.Fatalf("duplicate button: want ErrLabelTaken, got %v", err)
	}
	ch := models.Channel{Name: "main", Link: "https://example.com"}
	if err := SaveChannel(ch); err != nil {
		t.Fatalf("SaveChannel: %v", err)
	}
	if err := SaveChannel(ch); !errors.Is(err, ErrLabelTaken) {
		t.Fatalf("duplicate channel: want ErrLabelTaken, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	if err := InsertDedupMarker(1); err != nil {
		t.Fatalf("InsertDedupMarker: %v", err)
	}
	old := &models.Confession{Author: 1, AuthorName: "A", Body: "old", Status: models.StatusApproved,
		CreatedTS: now.Add(-40 * 24 * time.Hour).UnixNano()}
	if err := SaveConfession(old); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}
	fresh := &models.Confession{Author: 1, AuthorName: "A", Body: "fresh", Status: models.StatusApproved}
	if err := SaveConfession(fresh); err != nil {
		t.Fatalf("SaveConfession: %v", err)
	}
	cm := &models.Comment{ConfessionID: old.ID, Author: 2, AuthorName: "B", Body: "gone too"}
	if err := SaveComment(cm); err != nil {
		t.Fatalf("SaveComment: %v", err)
	}

	// markers are fresh, content period is 30d: only the old item goes
	res, err := PurgeExpired(now, 24*time.Hour, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if res.DedupMarkers != 0 || res.Confessions != 1 || res.Comments != 1 {
		t.Fatalf("unexpected purge result: %+v", res)
	}
	if _, err := GetConfession(old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old confession should be purged, got %v", err)
	}
	if _, err := GetConfession(fresh.ID); err != nil {
		t.Fatalf("fresh confession should remain: %v", err)
	}

	// a pass far in the future takes the marker as well
	res, err = PurgeExpired(now.Add(48*time.Hour), 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if res.DedupMarkers != 1 {
		t.Fatalf("marker not purged: %+v", res)
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
