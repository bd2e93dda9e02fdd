package store

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"confessd/pkg/logger"
	"confessd/pkg/models"
)

// PurgeResult reports what one retention pass removed.
type PurgeResult struct {
	DedupMarkers int
	Confessions  int
	Comments     int
}

// PurgeExpired removes dedup markers older than dedupTTL and confessions
// (with their comments) older than period. A zero period disables
// content expiry; a zero dedupTTL disables marker expiry.
func PurgeExpired(now time.Time, dedupTTL, period time.Duration) (PurgeResult, error) {
	var res PurgeResult
	if db == nil {
		return res, notOpened()
	}

	if dedupTTL > 0 {
		cutoff := now.Add(-dedupTTL).UnixNano()
		keys, err := keysOlderThan(dedupPrefix, cutoff, func(b []byte) int64 {
			var m models.DedupMarker
			if json.Unmarshal(b, &m) != nil {
				return 0
			}
			return m.CreatedTS
		})
		if err != nil {
			return res, err
		}
		for _, k := range keys {
			if err := db.Delete([]byte(k), pebble.Sync); err != nil {
				return res, err
			}
			res.DedupMarkers++
		}
	}

	if period > 0 {
		cutoff := now.Add(-period).UnixNano()
		var old []string
		err := scanJSON(confPrefix, func(b []byte) error {
			var c models.Confession
			if err := json.Unmarshal(b, &c); err != nil {
				return err
			}
			if c.CreatedTS > 0 && c.CreatedTS < cutoff {
				old = append(old, c.ID)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		for _, id := range old {
			n, cerr := CountComments(id)
			if cerr != nil {
				return res, cerr
			}
			if err := DeleteConfession(id); err != nil {
				return res, err
			}
			res.Confessions++
			res.Comments += n
		}
	}

	logger.Info("purge_done",
		"dedup_markers", res.DedupMarkers,
		"confessions", res.Confessions,
		"comments", res.Comments)
	return res, nil
}

// keysOlderThan collects keys under prefix whose extracted timestamp is
// before cutoff. Records the extractor cannot read are left in place.
func keysOlderThan(prefix string, cutoff int64, tsOf func([]byte) int64) ([]string, error) {
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	p := []byte(prefix)
	var out []string
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		ts := tsOf(iter.Value())
		if ts > 0 && ts < cutoff {
			out = append(out, string(iter.Key()))
		}
	}
	return out, iter.Error()
}
