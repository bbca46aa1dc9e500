package vectorstore

import (
	"errors"
	"fmt"
	"os"

	"reportrag/internal/apperr"
)

// writerLock is an exclusive advisory lock held on a collection directory
// for as long as the collection is open.
type writerLock struct {
	f *os.File
}

// acquireWriterLock takes the lock without waiting.
// Returns ErrStoreUnavailable if another process (or handle) holds it.
func acquireWriterLock(path string) (*writerLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open lock file: %v", apperr.ErrStoreUnavailable, err)
	}
	if err := tryLockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("%w: collection is locked by another writer (%s)", apperr.ErrStoreUnavailable, path)
		}
		return nil, fmt.Errorf("%w: failed to lock collection: %v", apperr.ErrStoreUnavailable, err)
	}
	return &writerLock{f: f}, nil
}

func (l *writerLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
