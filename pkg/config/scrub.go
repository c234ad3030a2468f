package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ScrubRules is the response-cleaning denylist. It is configuration data,
// not business logic: deployments tune it as the underlying model's
// boilerplate changes.
type ScrubRules struct {
	// MarkerTokens drops any line containing one of these substrings.
	MarkerTokens []string `yaml:"marker_tokens"`

	// MarkerPrefixes drops any line starting with one of these.
	MarkerPrefixes []string `yaml:"marker_prefixes"`

	// Boilerplate drops any line containing one of these literal sentences.
	Boilerplate []string `yaml:"boilerplate"`

	// DuplicateHeaderFields marks a table-header line: a line containing all
	// of these labels is dropped when it repeats an earlier header.
	DuplicateHeaderFields []string `yaml:"duplicate_header_fields"`
}

// DefaultScrubRules mirrors the denylist shipped with the service.
func DefaultScrubRules() *ScrubRules {
	return &ScrubRules{
		MarkerTokens:   []string{"function="},
		MarkerPrefixes: []string{"<"},
		Boilerplate: []string{
			"However, since the previous output was empty",
			"I hope this alternative result helps",
			"Please note that the claim amounts are subject to audit",
		},
		DuplicateHeaderFields: []string{"Claim ID", "Member ID", "Provider ID"},
	}
}

// LoadScrubRules reads a scrub-rules YAML file.
func LoadScrubRules(path string) (*ScrubRules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scrub rules %s: %w", path, err)
	}

	rules := &ScrubRules{}
	if err := yaml.Unmarshal(raw, rules); err != nil {
		return nil, fmt.Errorf("failed to parse scrub rules %s: %w", path, err)
	}

	return rules, nil
}

// ScrubRuleStore holds the current rules and hot-reloads them when the
// backing file changes.
type ScrubRuleStore struct {
	mu    sync.RWMutex
	rules *ScrubRules
	path  string
}

// NewScrubRuleStore loads rules from path, falling back to the defaults when
// path is empty.
func NewScrubRuleStore(path string) (*ScrubRuleStore, error) {
	store := &ScrubRuleStore{path: path}

	if path == "" {
		store.rules = DefaultScrubRules()
		return store, nil
	}

	rules, err := LoadScrubRules(path)
	if err != nil {
		return nil, err
	}
	store.rules = rules
	return store, nil
}

// Current returns the active rule set.
func (s *ScrubRuleStore) Current() *ScrubRules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Watch reloads the rules whenever the backing file is written. Returns when
// ctx is cancelled. No-op when the store uses built-in defaults.
func (s *ScrubRuleStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file on save.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			rules, err := LoadScrubRules(s.path)
			if err != nil {
				slog.Warn("Failed to reload scrub rules, keeping previous", "path", s.path, "error", err)
				continue
			}

			s.mu.Lock()
			s.rules = rules
			s.mu.Unlock()
			slog.Info("Scrub rules reloaded", "path", s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Scrub rules watcher error", "error", err)
		}
	}
}
