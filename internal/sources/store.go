package sources

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// Store persists the source list as a JSON document and reloads it when the
// file changes on disk, so hand edits and extension syncs both take effect
// without a restart.
type Store struct {
	path   string
	logger *pterm.Logger

	mu       sync.Mutex
	lastHash [32]byte

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewStore creates a store over the given file path.
func NewStore(path string, logger *pterm.Logger) *Store {
	return &Store{path: path, logger: logger, stopCh: make(chan struct{})}
}

// Load reads the persisted list. A missing file returns (nil, nil) so the
// caller can fall back to defaults; a malformed file is an error.
func (s *Store) Load() ([]Source, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var list []Source
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastHash = sha256.Sum256(data)
	s.mu.Unlock()
	return list, nil
}

// Save writes the list atomically (write + rename) and remembers the
// content hash so the watcher can tell self-writes from external edits.
func (s *Store) Save(list []Source) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}

	s.mu.Lock()
	s.lastHash = sha256.Sum256(data)
	s.mu.Unlock()
	return nil
}

// Watch starts an fsnotify loop on the file's directory (editors replace
// files, so watching the path itself misses renames) and invokes onChange
// with the freshly loaded list after external modifications. Events are
// debounced so a burst of writes reloads once.
func (s *Store) Watch(onChange func([]Source)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	s.watcher = watcher
	s.wg.Add(1)
	go s.eventLoop(onChange)

	s.logger.Debug("Watching source file", s.logger.Args("path", s.path))
	return nil
}

// Close stops the watcher loop.
func (s *Store) Close() {
	if s.watcher == nil {
		return
	}
	close(s.stopCh)
	s.watcher.Close()
	s.wg.Wait()
}

func (s *Store) eventLoop(onChange func([]Source)) {
	defer s.wg.Done()

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-s.stopCh:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			s.reload(onChange)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Source file watcher error", s.logger.Args("error", err))
		}
	}
}

func (s *Store) reload(onChange func([]Source)) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("Failed to re-read source file", s.logger.Args("path", s.path, "error", err))
		return
	}

	hash := sha256.Sum256(data)
	s.mu.Lock()
	self := hash == s.lastHash
	if !self {
		s.lastHash = hash
	}
	s.mu.Unlock()
	if self {
		return
	}

	var list []Source
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Warn("Ignoring malformed source file edit", s.logger.Args("path", s.path, "error", err))
		return
	}

	s.logger.Info("Source file changed on disk, reloading", s.logger.Args("count", len(list)))
	onChange(list)
}
