// Package anysnap stores numbered model snapshots.
//
// Every Store keeps a bounded number of the most recent
// snapshots and never exposes a partially written one.
package anysnap

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested snapshot does
// not exist, or when a store holds no snapshots at all.
var ErrNotFound = errors.New("snapshot not found")

// A Store persists serialized snapshots by id.
//
// Ids are expected to increase over time.
// After a Save, only the Keep newest snapshots remain.
type Store interface {
	// Save writes a snapshot atomically.
	// If Save fails, the store is left as it was.
	Save(ctx context.Context, id int, data []byte) error

	// Load reads a snapshot.
	Load(ctx context.Context, id int) ([]byte, error)

	// Latest returns the newest snapshot id.
	Latest(ctx context.Context) (int, error)
}

// evictions returns the ids to drop so that at most keep
// ids remain, given ids sorted in ascending order.
func evictions(ids []int, keep int) []int {
	if keep < 1 {
		keep = 1
	}
	if len(ids) <= keep {
		return nil
	}
	return ids[:len(ids)-keep]
}
