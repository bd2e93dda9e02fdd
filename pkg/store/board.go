package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"confessd/pkg/logger"
	"confessd/pkg/models"
)

// Board key namespaces. Comments are stored under their parent id and
// indexed by comment id so vote/reply tokens can carry the short id.
const (
	confPrefix         = "conf:"
	commentPrefix      = "cmt:"
	commentIndexPrefix = "cmi:"
	seqKey             = "seq:conf"
)

// Vote directions.
const (
	DirUp   = "up"
	DirDown = "down"
)

// seq reduces key collisions when multiple confessions share the same
// nanosecond timestamp.
var seq uint64

// GenConfID returns a sortable confession id so prefix iteration yields
// insertion order.
func GenConfID() string {
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, s)
}

// SaveConfession writes a confession record under its id.
func SaveConfession(c *models.Confession) error {
	if c.ID == "" {
		c.ID = GenConfID()
	}
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := setJSON(confPrefix+c.ID, c); err != nil {
		logger.Error("save_confession_failed", "id", c.ID, "error", err)
		return err
	}
	return nil
}

// GetConfession loads one confession by id.
func GetConfession(id string) (*models.Confession, error) {
	var c models.Confession
	if err := getJSON(confPrefix+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// FirstPending returns one pending confession: whatever the store yields
// first under the prefix. Oldest-first is an artifact of sortable ids,
// not a guarantee.
func FirstPending() (*models.Confession, error) {
	var found *models.Confession
	err := scanJSON(confPrefix, func(b []byte) error {
		if found != nil {
			return nil
		}
		var c models.Confession
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		if c.Status == models.StatusPending {
			found = &c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// CountPending returns the number of confessions awaiting moderation.
func CountPending() (int, error) {
	n := 0
	err := scanJSON(confPrefix, func(b []byte) error {
		var c models.Confession
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		if c.Status == models.StatusPending {
			n++
		}
		return nil
	})
	return n, err
}

// ApproveConfession transitions a pending confession to approved and
// assigns the next sequential public identifier, starting at base. The
// counter read and write run under the store mutex so the assignment is
// one atomic operation.
func ApproveConfession(id string, base int64) (*models.Confession, error) {
	mu.Lock()
	defer mu.Unlock()
	c, err := GetConfession(id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusPending {
		return nil, fmt.Errorf("confession %s is not pending", id)
	}
	next, err := nextPublicIDLocked(base)
	if err != nil {
		return nil, err
	}
	c.Status = models.StatusApproved
	c.PublicID = next
	c.ApprovedTS = time.Now().UTC().UnixNano()
	if err := SaveConfession(c); err != nil {
		return nil, err
	}
	logger.Info("confession_approved", "id", id, "public_id", next)
	return c, nil
}

// nextPublicIDLocked bumps the approval counter. Callers hold mu.
func nextPublicIDLocked(base int64) (int64, error) {
	if db == nil {
		return 0, notOpened()
	}
	cur := base - 1
	b, closer, err := db.Get([]byte(seqKey))
	if err == nil {
		v, perr := strconv.ParseInt(string(b), 10, 64)
		closer.Close()
		if perr != nil {
			return 0, fmt.Errorf("corrupt approval counter: %w", perr)
		}
		cur = v
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return 0, err
	}
	next := cur + 1
	if err := db.Set([]byte(seqKey), []byte(strconv.FormatInt(next, 10)), pebble.Sync); err != nil {
		return 0, err
	}
	return next, nil
}

// DeleteConfession removes a confession and all of its comments. Used by
// rejection and by retention; a rejected item never receives a public id.
func DeleteConfession(id string) error {
	if db == nil {
		return notOpened()
	}
	cs, err := ListComments(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	for _, cm := range cs {
		if err := deleteComment(id, cm.ID); err != nil {
			return err
		}
	}
	if err := db.Delete([]byte(confPrefix+id), pebble.Sync); err != nil {
		return err
	}
	logger.Info("confession_deleted", "id", id)
	return nil
}

// ListApproved returns one page of approved confessions ordered
// newest-first, plus the total approved count for pagination controls.
func ListApproved(page, size int) ([]models.Confession, int, error) {
	var all []models.Confession
	err := scanJSON(confPrefix, func(b []byte) error {
		var c models.Confession
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		if c.Status == models.StatusApproved {
			all = append(all, c)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	// scan order is oldest-first; flip for newest-first browsing
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := len(all)
	skip := page * size
	if skip >= total {
		return nil, total, nil
	}
	end := skip + size
	if end > total {
		end = total
	}
	return all[skip:end], total, nil
}

// FindApprovedByPublicID resolves a public identifier to its confession.
func FindApprovedByPublicID(publicID int64) (*models.Confession, error) {
	var found *models.Confession
	err := scanJSON(confPrefix, func(b []byte) error {
		if found != nil {
			return nil
		}
		var c models.Confession
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		if c.Status == models.StatusApproved && c.PublicID == publicID {
			found = &c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ToggleConfessionVote applies the exclusive vote rule: the voter is
// removed from both sets unconditionally, then added back only to the
// requested set. Runs as one atomic replace under the store mutex.
func ToggleConfessionVote(id string, voter int64, dir string) (*models.Confession, error) {
	mu.Lock()
	defer mu.Unlock()
	c, err := GetConfession(id)
	if err != nil {
		return nil, err
	}
	c.Upvotes, c.Downvotes = replaceVote(c.Upvotes, c.Downvotes, voter, dir)
	if err := SaveConfession(c); err != nil {
		return nil, err
	}
	return c, nil
}

// replaceVote removes voter from both sets and re-adds to the one for dir.
func replaceVote(up, down []int64, voter int64, dir string) ([]int64, []int64) {
	up = removeID(up, voter)
	down = removeID(down, voter)
	switch dir {
	case DirUp:
		up = append(up, voter)
	case DirDown:
		down = append(down, voter)
	}
	return up, down
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// SaveComment writes a comment under its parent confession and indexes
// it by comment id for token lookups.
func SaveComment(c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().UTC().UnixNano()
	}
	if err := setJSON(commentKey(c.ConfessionID, c.ID), c); err != nil {
		logger.Error("save_comment_failed", "id", c.ID, "error", err)
		return err
	}
	if db == nil {
		return notOpened()
	}
	return db.Set([]byte(commentIndexPrefix+c.ID), []byte(c.ConfessionID), pebble.Sync)
}

// GetComment resolves a comment by id through the index.
func GetComment(id string) (*models.Comment, error) {
	if db == nil {
		return nil, notOpened()
	}
	b, closer, err := db.Get([]byte(commentIndexPrefix + id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	confID := string(b)
	closer.Close()
	var c models.Comment
	if err := getJSON(commentKey(confID, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListComments returns all comments on a confession in posting order.
func ListComments(confID string) ([]models.Comment, error) {
	var out []models.Comment
	err := scanJSON(commentPrefix+confID+":", func(b []byte) error {
		var c models.Comment
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

// CountComments returns the number of comments on a confession.
func CountComments(confID string) (int, error) {
	cs, err := ListComments(confID)
	if err != nil {
		return 0, err
	}
	return len(cs), nil
}

// ToggleCommentVote applies the exclusive vote rule to a comment.
func ToggleCommentVote(id string, voter int64, dir string) (*models.Comment, error) {
	mu.Lock()
	defer mu.Unlock()
	c, err := GetComment(id)
	if err != nil {
		return nil, err
	}
	c.Upvotes, c.Downvotes = replaceVote(c.Upvotes, c.Downvotes, voter, dir)
	if err := setJSON(commentKey(c.ConfessionID, c.ID), c); err != nil {
		return nil, err
	}
	return c, nil
}

// AppendReply attaches a one-level reply to a comment.
func AppendReply(id string, r models.Reply) (*models.Comment, error) {
	mu.Lock()
	defer mu.Unlock()
	c, err := GetComment(id)
	if err != nil {
		return nil, err
	}
	if r.CreatedTS == 0 {
		r.CreatedTS = time.Now().UTC().UnixNano()
	}
	c.Replies = append(c.Replies, r)
	if err := setJSON(commentKey(c.ConfessionID, c.ID), c); err != nil {
		return nil, err
	}
	return c, nil
}

func deleteComment(confID, id string) error {
	if err := db.Delete([]byte(commentKey(confID, id)), pebble.Sync); err != nil {
		return err
	}
	return db.Delete([]byte(commentIndexPrefix+id), pebble.Sync)
}

func commentKey(confID, id string) string {
	return commentPrefix + confID + ":" + id
}
