package artifact

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	allocLockName  = ".alloc.lock"
	allocLockRetry = 100 * time.Millisecond
)

// Reserve allocates the next id of class c in dataset id and calls persist
// with it while holding an exclusive lock on the class directory. Concurrent
// Reserve calls, in this process or another, are serialized, so the id is
// unique as long as persist writes its artifact before returning.
func (n *Namer) Reserve(ctx context.Context, id string, c Class, persist func(artifactID string) error) (string, error) {
	dir, err := n.Dir(id, c)
	if err != nil {
		return "", err
	}
	lockPath := filepath.Join(dir, allocLockName)
	l := flock.New(lockPath)
	locked, err := l.TryLockContext(ctx, allocLockRetry)
	if err != nil {
		return "", fmt.Errorf("cannot acquire allocation lock %s: %w", lockPath, err)
	}
	if !locked {
		return "", fmt.Errorf("cannot acquire allocation lock %s", lockPath)
	}
	defer func() { _ = l.Unlock() }()

	v, err := NextVersion(dir, c.Prefix)
	if err != nil {
		return "", err
	}
	artifactID := FormatID(c.Prefix, v)
	n.log.Info("Allocated artifact", zap.String("dataset", id), zap.String("artifact", artifactID))
	if err := persist(artifactID); err != nil {
		return "", err
	}
	return artifactID, nil
}
