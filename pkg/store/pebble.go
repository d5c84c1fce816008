package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
	"parley/pkg/models"
)

var db *pebble.DB
var dbPath string

// seq reduces key collisions when multiple cached messages share the same
// millisecond timestamp.
var seq uint64

const identityKey = "identity"

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
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
	dbPath = ""
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// SaveIdentity persists the local identity record. Called synchronously at
// guest creation time, before any network call.
func SaveIdentity(id models.LocalIdentity) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := db.Set([]byte(identityKey), data, pebble.Sync); err != nil {
		logger.Error("save_identity_failed", "guest", id.GuestID, "error", err)
		return err
	}
	logger.Info("identity_saved", "guest", id.GuestID, "provisioned", id.Provisioned())
	return nil
}

// LoadIdentity returns the persisted identity, or nil when none exists.
func LoadIdentity() (*models.LocalIdentity, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(identityKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	var id models.LocalIdentity
	if err := json.Unmarshal(v, &id); err != nil {
		return nil, fmt.Errorf("corrupt identity record: %w", err)
	}
	return &id, nil
}

// ClearIdentity removes the persisted identity. Only explicit logout calls
// this; transient backend errors never do.
func ClearIdentity() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(identityKey), pebble.Sync); err != nil {
		return err
	}
	logger.Info("identity_cleared")
	return nil
}

// msgKey builds a sortable cache key for a conversation message.
// Key format: conv:<conversationID>:msg:<unix_ms_padded>-<seq>
func msgKey(conversationID string, orderMs int64) []byte {
	s := atomic.AddUint64(&seq, 1)
	return []byte(fmt.Sprintf("conv:%s:msg:%015d-%06d", conversationID, orderMs, s))
}

func convPrefix(conversationID string) []byte {
	return []byte("conv:" + conversationID + ":msg:")
}

// SaveSnapshot replaces the cached authoritative snapshot for a
// conversation. Snapshots are full replacements, mirroring how the stream
// delivers them.
func SaveSnapshot(conversationID string, msgs []models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := convPrefix(conversationID)
	end := append(append([]byte(nil), prefix...), 0xff)
	b := db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(prefix, end, nil); err != nil {
		return err
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := b.Set(msgKey(conversationID, m.OrderKey()), data, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("save_snapshot_failed", "conversation", conversationID, "error", err)
		return err
	}
	logger.Debug("snapshot_cached", "conversation", conversationID, "count", len(msgs))
	return nil
}

// LoadSnapshot returns the cached snapshot for a conversation in key order.
func LoadSnapshot(conversationID string) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := convPrefix(conversationID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("corrupt_cached_message", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// PruneBefore removes cached messages whose order timestamp is older than
// cutoffMs across all conversations. Returns the number of keys removed.
func PruneBefore(cutoffMs int64, dryRun bool) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var victims [][]byte
	for iter.SeekGE([]byte("conv:")); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, []byte("conv:")) {
			break
		}
		ts, ok := keyTimestamp(string(k))
		if !ok {
			continue
		}
		if ts < cutoffMs {
			victims = append(victims, append([]byte(nil), k...))
		}
	}
	if dryRun {
		return len(victims), nil
	}
	for _, k := range victims {
		if err := db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(victims) > 0 {
		logger.Info("cache_pruned", "removed", len(victims), "cutoff_ms", cutoffMs)
	}
	return len(victims), nil
}

// keyTimestamp extracts the padded millisecond timestamp from a cache key.
func keyTimestamp(key string) (int64, bool) {
	i := strings.LastIndex(key, ":msg:")
	if i < 0 {
		return 0, false
	}
	rest := key[i+len(":msg:"):]
	j := strings.IndexByte(rest, '-')
	if j < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest[:j], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
