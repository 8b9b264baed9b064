package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/rccstake/rccstake/internal/logging"
	"github.com/rccstake/rccstake/internal/util"
)

const watchDebounce = 100 * time.Millisecond

// AccountWatcher reports the active keystore account whenever the keystore
// directory changes. A zero address means the directory holds no account.
type AccountWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	changes chan common.Address

	mu      sync.Mutex
	current common.Address

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewAccountWatcher starts watching dir, creating it if needed
func NewAccountWatcher(dir string) (*AccountWatcher, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &AccountWatcher{
		dir:     dir,
		watcher: fw,
		changes: make(chan common.Address, 1),
		current: PrimaryAccount(dir),
		done:    make(chan struct{}),
	}
	util.GoGroup(&w.wg, "identity.watcher", w.loop)
	return w, nil
}

// Current returns the active account
func (w *AccountWatcher) Current() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Changes delivers the new active account after each switch. Only the
// latest switch is kept if the reader falls behind.
func (w *AccountWatcher) Changes() <-chan common.Address {
	return w.changes
}

// Close stops watching and closes Changes. It is safe to call more than
// once and from several goroutines.
func (w *AccountWatcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *AccountWatcher) loop() {
	defer close(w.changes)

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("keystore watcher error", logging.Err(err), logging.Component("identity"))
		case <-timer.C:
			w.rescan()
		}
	}
}

func (w *AccountWatcher) rescan() {
	account := PrimaryAccount(w.dir)

	w.mu.Lock()
	if account == w.current {
		w.mu.Unlock()
		return
	}
	w.current = account
	w.mu.Unlock()

	logging.Info("keystore account changed", logging.Account(account), logging.Component("identity"))
	select {
	case w.changes <- account:
	default:
		select {
		case <-w.changes:
		default:
		}
		w.changes <- account
	}
}

// PrimaryAccount returns the address of the first key file in dir by name,
// matching the keystore's own ordering, or the zero address.
func PrimaryAccount(dir string) common.Address {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return common.Address{}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' || e.Name()[0] == '~' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var key struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(data, &key); err != nil || !common.IsHexAddress(key.Address) {
			continue
		}
		return common.HexToAddress(key.Address)
	}
	return common.Address{}
}
