// Package lock serializes install operations per game directory, both
// inside one launcher process and across processes.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// ErrLocked is returned when another operation holds the directory
var ErrLocked = errors.New("another install is already running for this directory")

// FileName is the lock file created in the locked directory
const FileName = ".butter-install.lock"

// DefaultStaleAfter is how old a lock file without a known owner may get
// before it is broken
const DefaultStaleAfter = 30 * time.Minute

var (
	mu   sync.Mutex
	held = make(map[string]struct{})

	staleAfter = DefaultStaleAfter
	pidAlive   = process.PidExists
	now        = time.Now
)

type owner struct {
	PID      int32     `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

// Lock is a held directory lock
type Lock struct {
	key  string
	path string
	once sync.Once
}

func keyFor(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve lock directory: %w", err)
	}
	return filepath.Clean(abs), nil
}

// Acquire takes the lock for dir without blocking. It fails with ErrLocked
// when the directory is held by this process or by a live lock file.
func Acquire(dir string) (*Lock, error) {
	key, err := keyFor(dir)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	if _, ok := held[key]; ok {
		mu.Unlock()
		return nil, ErrLocked
	}
	held[key] = struct{}{}
	mu.Unlock()

	path := filepath.Join(key, FileName)
	if err := createLockFile(key, path); err != nil {
		mu.Lock()
		delete(held, key)
		mu.Unlock()
		return nil, err
	}

	return &Lock{key: key, path: path}, nil
}

func createLockFile(dir, path string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			data, _ := json.Marshal(owner{PID: int32(os.Getpid()), Acquired: now().UTC()})
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		if !isStale(path) {
			return ErrLocked
		}
		log.Warnf("breaking stale install lock %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return ErrLocked
}

// isStale reports whether a lock file was left behind by a dead run. A live
// owner keeps its lock however long the install takes; age only decides
// when the owner cannot be determined.
func isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return os.IsNotExist(err)
	}
	expired := now().Sub(info.ModTime()) > staleAfter

	data, err := os.ReadFile(path)
	if err != nil {
		return expired
	}
	var o owner
	if err := json.Unmarshal(data, &o); err != nil || o.PID <= 0 {
		return expired
	}
	if o.PID == int32(os.Getpid()) {
		// our own pid but not in the held set: left over from a crashed run
		return true
	}
	alive, err := pidAlive(o.PID)
	if err != nil {
		log.Debugf("failed to check lock owner %d: %v", o.PID, err)
		return expired
	}
	return !alive
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to remove lock file: %w", rmErr)
		}
		mu.Lock()
		delete(held, l.key)
		mu.Unlock()
	})
	return err
}
