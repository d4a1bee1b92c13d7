package fallback

import (
	"crypto/sha256"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/calebjordan/gca-chat-core/internal/config"
)

// reloadDebounce coalesces the burst of fsnotify events a single editor save
// typically produces into one reload.
const reloadDebounce = 200 * time.Millisecond

// PolicyWatcher watches a config file and pushes fallback-table changes into
// a Policy without a process restart.
//
// Grounded on internal/watcher/config_reload.go's debounced, content-hash
// idiom: a fsnotify.Watcher feeds a single debounce timer, and the file is
// only re-parsed into the live Policy when its sha256 actually changed, so a
// touch-without-modify or a partial-write event is a no-op.
type PolicyWatcher struct {
	path     string
	policy   *Policy
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	lastHash [32]byte
	stopCh   chan struct{}
}

// WatchPolicy starts watching path and keeps policy in sync with its
// fallback table on every material change.
func WatchPolicy(path string, policy *Policy) (*PolicyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	pw := &PolicyWatcher{path: path, policy: policy, watcher: fsw, stopCh: make(chan struct{})}
	if data, readErr := os.ReadFile(path); readErr == nil {
		pw.lastHash = sha256.Sum256(data)
	}

	go pw.run()
	return pw, nil
}

func (pw *PolicyWatcher) run() {
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pw.scheduleReload()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("fallback policy watcher: fsnotify error")
		case <-pw.stopCh:
			return
		}
	}
}

func (pw *PolicyWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(reloadDebounce, pw.reloadIfChanged)
}

func (pw *PolicyWatcher) reloadIfChanged() {
	data, err := os.ReadFile(pw.path)
	if err != nil {
		log.WithError(err).Warn("fallback policy watcher: read config failed")
		return
	}
	if len(data) == 0 {
		return
	}
	hash := sha256.Sum256(data)

	pw.mu.Lock()
	unchanged := hash == pw.lastHash
	pw.lastHash = hash
	pw.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := config.LoadConfig(pw.path)
	if err != nil {
		log.WithError(err).Warn("fallback policy watcher: reload failed")
		return
	}
	pw.policy.Update(cfg.Fallback)
	log.Info("fallback policy: reloaded from config")
}

// Close stops the watcher.
func (pw *PolicyWatcher) Close() error {
	close(pw.stopCh)
	pw.mu.Lock()
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.mu.Unlock()
	return pw.watcher.Close()
}
