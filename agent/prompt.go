// System prompt template.
//
// Information Hiding:
// - Template source (file or embedded default)
// - Placeholder substitution
// - Hot reload on file change

package agent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PromptTimeLayout formats {{CURRENT_TIME}}.
const PromptTimeLayout = "2006-01-02 15:04"

//go:embed prompts/system_prompt.md
var defaultPrompt string

// PromptTemplate holds the system prompt template. Render is safe for
// concurrent use while Watch reloads the file.
type PromptTemplate struct {
	path string

	mu     sync.RWMutex
	text   string
	digest uint64
}

// DefaultPromptTemplate returns the built-in template.
func DefaultPromptTemplate() *PromptTemplate {
	return &PromptTemplate{text: defaultPrompt, digest: xxhash.Sum64String(defaultPrompt)}
}

// LoadPromptTemplate reads the template at path. An empty path, a missing
// file or a blank file yields the built-in template.
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	p := DefaultPromptTemplate()
	p.path = path
	if path == "" {
		return p, nil
	}
	if _, err := p.reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return p, nil
}

// Path returns the template file, or "" for the built-in template.
func (p *PromptTemplate) Path() string {
	return p.path
}

// Text returns the raw template.
func (p *PromptTemplate) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Render substitutes {{MODEL_NAME}} and {{CURRENT_TIME}}.
func (p *PromptTemplate) Render(modelName string, now time.Time) string {
	return strings.NewReplacer(
		"{{MODEL_NAME}}", modelName,
		"{{CURRENT_TIME}}", now.Format(PromptTimeLayout),
	).Replace(p.Text())
}

// Digest returns a hex fingerprint of the current template text.
func (p *PromptTemplate) Digest() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("%016x", p.digest)
}

// reload rereads the file and reports whether the text changed.
func (p *PromptTemplate) reload() (bool, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return false, fmt.Errorf("read prompt template: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		text = defaultPrompt
	}
	sum := xxhash.Sum64String(text)

	p.mu.Lock()
	defer p.mu.Unlock()
	if sum == p.digest {
		return false, nil
	}
	p.text = text
	p.digest = sum
	return true, nil
}

// Watch reloads the template whenever its file changes, until ctx is done.
// It watches the parent directory so editors that replace the file are
// handled. Without a path it returns immediately.
func (p *PromptTemplate) Watch(ctx context.Context, logger *zap.Logger) error {
	if p.path == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	const debounce = 200 * time.Millisecond
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			changed, err := p.reload()
			if err != nil {
				logger.Warn("prompt template reload failed", zap.Error(err))
				return
			}
			if changed {
				logger.Info("prompt template reloaded",
					zap.String("path", p.path),
					zap.String("digest", p.Digest()))
			}
		})
	}

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("prompt watch error", zap.Error(err))
		}
	}
}
