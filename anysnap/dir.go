package anysnap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
)

const (
	snapshotPrefix = "snapshot-"
	snapshotSuffix = ".bin"
)

// DirStore keeps snapshots as files in a directory.
//
// A snapshot is written to a temporary file, synced and
// then renamed into place, so readers see either the old
// or the new set of snapshots.
type DirStore struct {
	Dir  string
	Keep int
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string, keep int) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}
	return &DirStore{Dir: dir, Keep: keep}, nil
}

// Save writes the snapshot and removes old ones.
func (d *DirStore) Save(ctx context.Context, id int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.write(id, data); err != nil {
		return essentials.AddCtx("save snapshot "+strconv.Itoa(id), err)
	}
	return nil
}

func (d *DirStore) write(id int, data []byte) (err error) {
	tmp, err := os.CreateTemp(d.Dir, ".tmp-"+snapshotPrefix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, d.path(id)); err != nil {
		return err
	}
	if err := syncDir(d.Dir); err != nil {
		return err
	}

	ids, err := d.ids()
	if err != nil {
		return err
	}
	for _, old := range evictions(ids, d.Keep) {
		if err := os.Remove(d.path(old)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// syncDir flushes a directory entry, so that a rename
// inside it survives a crash.
var syncDir = func(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Load reads a snapshot file.
func (d *DirStore) Load(ctx context.Context, id int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(id))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "snapshot %d in %s", id, d.Dir)
	} else if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %d", id)
	}
	return data, nil
}

// Latest finds the newest snapshot file.
func (d *DirStore) Latest(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ids, err := d.ids()
	if err != nil {
		return 0, errors.Wrap(err, "list snapshots")
	}
	if len(ids) == 0 {
		return 0, errors.Wrapf(ErrNotFound, "no snapshots in %s", d.Dir)
	}
	return ids[len(ids)-1], nil
}

func (d *DirStore) path(id int) string {
	return filepath.Join(d.Dir, fmt.Sprintf("%s%d%s", snapshotPrefix, id, snapshotSuffix))
}

// ids lists the stored snapshot ids in ascending order.
func (d *DirStore) ids() ([]int, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var res []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) ||
			!strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		id, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		res = append(res, id)
	}
	sort.Ints(res)
	return res, nil
}
