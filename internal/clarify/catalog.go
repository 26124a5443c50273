package clarify

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var embeddedCatalog []byte

// Catalog holds the static fallback question sets, indexed by request type.
// An optional on-disk file overrides the embedded defaults and is watched for
// changes so editors can tune questions without a redeploy.
type Catalog struct {
	mu       sync.RWMutex
	byType   map[string][]Question
	path     string
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	logger   *zap.Logger
}

// NewCatalog loads the embedded question catalog, overridden by path if set.
func NewCatalog(path string, logger *zap.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		stopCh: make(chan struct{}),
		logger: logger,
	}

	byType, err := parseCatalog(embeddedCatalog)
	if err != nil {
		return nil, fmt.Errorf("embedded question catalog: %w", err)
	}
	c.byType = byType

	if path != "" {
		if err := c.reload(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseCatalog(data []byte) (map[string][]Question, error) {
	var byType map[string][]Question
	if err := yaml.Unmarshal(data, &byType); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}
	if len(byType) == 0 {
		return nil, fmt.Errorf("question catalog is empty")
	}
	if _, ok := byType["default"]; !ok {
		return nil, fmt.Errorf("question catalog has no default entry")
	}
	return byType, nil
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read question catalog %s: %w", c.path, err)
	}
	byType, err := parseCatalog(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.byType = byType
	c.mu.Unlock()
	c.logger.Info("Question catalog loaded",
		zap.String("path", c.path),
		zap.Int("request_types", len(byType)),
	)
	return nil
}

// Watch starts watching the override file for changes. A broken edit keeps
// the previous catalog in place.
func (c *Catalog) Watch() error {
	if c.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	if err := watcher.Add(c.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch question catalog: %w", err)
	}
	c.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := c.reload(); err != nil {
						c.logger.Warn("Question catalog reload failed, keeping previous version",
							zap.Error(err),
						)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("Question catalog watcher error", zap.Error(err))
			case <-c.stopCh:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (c *Catalog) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// QuestionsFor returns the fallback question set for a request type, falling
// back to the default set for unknown types. The returned slice is a copy.
func (c *Catalog) QuestionsFor(requestType string) []Question {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qs, ok := c.byType[requestType]
	if !ok || len(qs) == 0 {
		qs = c.byType["default"]
	}
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}
