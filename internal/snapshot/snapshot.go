// Package snapshot stores a frozen copy of the dictionary in a bbolt file so
// crawlers and audit tooling can classify without reaching MySQL. Entries
// and conflict rules live in their own buckets as JSON values keyed by id
// and name; a meta bucket records when the snapshot was taken.
package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/example/tagcanon/internal/conflict"
	"github.com/example/tagcanon/internal/dictionary"
)

var (
	bucketEntries = []byte("entries")
	bucketRules   = []byte("conflict_rules")
	bucketMeta    = []byte("meta")
	keyCreatedAt  = []byte("created_at")
	keyRuleOrder  = []byte("rule_order")
)

type entryJSON struct {
	ID          int64    `json:"id"`
	Keyword     string   `json:"keyword"`
	StandardTag string   `json:"standard_tag"`
	Aliases     []string `json:"aliases"`
	Category    string   `json:"category"`
	IsActive    bool     `json:"is_active"`
}

// Info describes a snapshot file.
type Info struct {
	CreatedAt time.Time
	Entries   int
	Rules     int
}

// Write replaces the contents of the snapshot at path with snap.
func Write(path string, snap dictionary.Snapshot) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("bbolt open: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketRules, bucketMeta} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		entries, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}
		for i, r := range snap.Rows {
			id := r.ID
			if id == 0 {
				id = int64(i + 1)
			}
			data, err := json.Marshal(entryJSON{
				ID: id, Keyword: r.Keyword, StandardTag: r.StandardTag,
				Aliases: r.Aliases, Category: r.Category, IsActive: r.IsActive,
			})
			if err != nil {
				return err
			}
			if err := entries.Put(idKey(id), data); err != nil {
				return err
			}
		}

		rules, err := tx.CreateBucket(bucketRules)
		if err != nil {
			return err
		}
		order := make([]string, 0, len(snap.Rules))
		for _, r := range snap.Rules {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := rules.Put([]byte(r.Name), data); err != nil {
				return err
			}
			order = append(order, r.Name)
		}

		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		orderData, err := json.Marshal(order)
		if err != nil {
			return err
		}
		if err := meta.Put(keyRuleOrder, orderData); err != nil {
			return err
		}
		return meta.Put(keyCreatedAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Source reads a snapshot file as a dictionary source.
type Source struct {
	Path string
}

func (s Source) LoadDictionary(_ context.Context) (dictionary.Snapshot, error) {
	snap, _, err := Read(s.Path)
	return snap, err
}

// Read loads the snapshot at path. Entries come back in id order and rules
// in the order they were written.
func Read(path string) (dictionary.Snapshot, Info, error) {
	var snap dictionary.Snapshot
	var info Info
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: true})
	if err != nil {
		return snap, info, fmt.Errorf("bbolt open: %w", err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		rules := tx.Bucket(bucketRules)
		meta := tx.Bucket(bucketMeta)
		if entries == nil || rules == nil || meta == nil {
			return fmt.Errorf("%s is not a dictionary snapshot", path)
		}
		if err := entries.ForEach(func(_, v []byte) error {
			var e entryJSON
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			snap.Rows = append(snap.Rows, dictionary.Row{
				ID: e.ID, Keyword: e.Keyword, StandardTag: e.StandardTag,
				Aliases: e.Aliases, Category: e.Category, IsActive: e.IsActive,
			})
			return nil
		}); err != nil {
			return err
		}

		var order []string
		if data := meta.Get(keyRuleOrder); data != nil {
			if err := json.Unmarshal(data, &order); err != nil {
				return fmt.Errorf("decode rule order: %w", err)
			}
		}
		for _, name := range order {
			data := rules.Get([]byte(name))
			if data == nil {
				continue
			}
			var r conflict.Rule
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("decode rule %q: %w", name, err)
			}
			snap.Rules = append(snap.Rules, r)
		}

		if ts := meta.Get(keyCreatedAt); ts != nil {
			created, err := time.Parse(time.RFC3339, string(ts))
			if err != nil {
				return fmt.Errorf("decode created_at: %w", err)
			}
			info.CreatedAt = created
		}
		return nil
	})
	info.Entries = len(snap.Rows)
	info.Rules = len(snap.Rules)
	return snap, info, err
}

// idKey encodes ids big-endian so bbolt's byte ordering is id ordering.
func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
