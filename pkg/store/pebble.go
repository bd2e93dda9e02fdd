package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"confessd/pkg/logger"
	"confessd/pkg/models"
)

// Key namespaces. Every record kind lives under its own prefix so purge
// and listing can iterate narrow ranges.
const (
	actorPrefix   = "actor:"
	dedupPrefix   = "dedup:"
	cfgPrefix     = "cfgent:"
	buttonPrefix  = "button:"
	channelPrefix = "channel:"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDupUpdate is returned by InsertDedupMarker when the update
	// identifier was already seen. Callers must be able to tell this
	// apart from any other write failure.
	ErrDupUpdate = errors.New("duplicate update id")
	// ErrLabelTaken is returned when a button or channel label collides
	// with an existing registration.
	ErrLabelTaken = errors.New("label already registered")
)

var db *pebble.DB

// mu serializes read-modify-write sequences (dedup insert, vote replace,
// counter increment, aura award) so each is one atomic store operation.
var mu sync.Mutex

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// getJSON loads and unmarshals the record at key into v.
func getJSON(key string, v any) error {
	if db == nil {
		return notOpened()
	}
	b, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(b, v)
}

// setJSON marshals v and writes it at key with a synced write.
func setJSON(key string, v any) error {
	if db == nil {
		return notOpened()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return db.Set([]byte(key), b, pebble.Sync)
}

// InsertDedupMarker records that an update identifier has been seen.
// The check-and-insert runs under the store mutex so a concurrent second
// delivery of the same identifier cannot slip past the gate in-process.
func InsertDedupMarker(updateID int64) error {
	if db == nil {
		return notOpened()
	}
	key := dedupPrefix + strconv.FormatInt(updateID, 10)
	mu.Lock()
	defer mu.Unlock()
	_, closer, err := db.Get([]byte(key))
	if err == nil {
		closer.Close()
		return ErrDupUpdate
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	m := models.DedupMarker{UpdateID: updateID, CreatedTS: time.Now().UTC().UnixNano()}
	return setJSON(key, m)
}

// GetActor loads an actor by platform identifier.
func GetActor(id int64) (*models.Actor, error) {
	var a models.Actor
	if err := getJSON(actorKey(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveActor upserts an actor record.
func SaveActor(a *models.Actor) error {
	return setJSON(actorKey(a.ID), a)
}

// ListActorIDs returns every known actor identifier. Used by broadcast
// staging to build the audience.
func ListActorIDs() ([]int64, error) {
	if db == nil {
		return nil, notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte(actorPrefix)
	var out []int64
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		id, perr := strconv.ParseInt(string(iter.Key()[len(prefix):]), 10, 64)
		if perr != nil {
			continue
		}
		out = append(out, id)
	}
	return out, iter.Error()
}

// AwardAura adds delta to an actor's reputation score as one atomic
// store operation.
func AwardAura(actorID, delta int64) error {
	mu.Lock()
	defer mu.Unlock()
	a, err := GetActor(actorID)
	if err != nil {
		return err
	}
	a.Profile.Aura += delta
	return SaveActor(a)
}

// SaveAdminState persists only the wizard position of an actor.
func SaveAdminState(actorID int64, st models.AdminState) error {
	mu.Lock()
	defer mu.Unlock()
	a, err := GetActor(actorID)
	if err != nil {
		return err
	}
	a.AdminState = st
	return SaveActor(a)
}

// GetConfigEntry returns the configuration value for key, or ErrNotFound.
func GetConfigEntry(key string) (string, error) {
	var e models.ConfigEntry
	if err := getJSON(cfgPrefix+key, &e); err != nil {
		return "", err
	}
	return e.Value, nil
}

// SetConfigEntry upserts a configuration key/value pair.
func SetConfigEntry(key, value string) error {
	e := models.ConfigEntry{Key: key, Value: value, UpdatedTS: time.Now().UTC().UnixNano()}
	return setJSON(cfgPrefix+key, e)
}

// SaveButton registers an ad-hoc button. The label is the unique key;
// a collision returns ErrLabelTaken.
func SaveButton(b models.Button) error {
	if db == nil {
		return notOpened()
	}
	key := buttonPrefix + b.Label
	mu.Lock()
	defer mu.Unlock()
	if _, closer, err := db.Get([]byte(key)); err == nil {
		closer.Close()
		return ErrLabelTaken
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	return setJSON(key, b)
}

// GetButton loads a registered button by label.
func GetButton(label string) (*models.Button, error) {
	var b models.Button
	if err := getJSON(buttonPrefix+label, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListButtons returns every registered button.
func ListButtons() ([]models.Button, error) {
	var out []models.Button
	err := scanJSON(buttonPrefix, func(b []byte) error {
		var btn models.Button
		if err := json.Unmarshal(b, &btn); err != nil {
			return err
		}
		out = append(out, btn)
		return nil
	})
	return out, err
}

// SaveChannel registers a channel. The name is the unique key; a
// collision returns ErrLabelTaken.
func SaveChannel(c models.Channel) error {
	if db == nil {
		return notOpened()
	}
	key := channelPrefix + c.Name
	mu.Lock()
	defer mu.Unlock()
	if _, closer, err := db.Get([]byte(key)); err == nil {
		closer.Close()
		return ErrLabelTaken
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	return setJSON(key, c)
}

// ListChannels returns every registered channel.
func ListChannels() ([]models.Channel, error) {
	var out []models.Channel
	err := scanJSON(channelPrefix, func(b []byte) error {
		var ch models.Channel
		if err := json.Unmarshal(b, &ch); err != nil {
			return err
		}
		out = append(out, ch)
		return nil
	})
	return out, err
}

// scanJSON iterates every value under prefix and passes the raw bytes to fn.
func scanJSON(prefix string, fn func([]byte) error) error {
	if db == nil {
		return notOpened()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	p := []byte(prefix)
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		if err := fn(v); err != nil {
			return err
		}
	}
	return iter.Error()
}

func actorKey(id int64) string {
	return actorPrefix + strconv.FormatInt(id, 10)
}
