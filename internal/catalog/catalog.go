// Package catalog aggregates per-app skills documents into one immutable,
// atomically swapped lookup structure for the runtime. Readers always see
// a complete snapshot; rebuilds never block resolution.
package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"capgen/internal/capability"
	"capgen/internal/describe"
	"capgen/internal/workspace"
)

// DuplicateIntentError records two capabilities claiming the same intent
// phrase for one app. The most recently compiled capability keeps the
// phrase; the loser is reported, never silently dropped.
type DuplicateIntentError struct {
	AppID   string
	Intent  string
	Kept    string
	Dropped string
}

func (e *DuplicateIntentError) Error() string {
	return fmt.Sprintf("app %s: intent %q claimed by both %s and %s (kept %s)",
		e.AppID, e.Intent, e.Kept, e.Dropped, e.Kept)
}

type appEntry struct {
	intents      []string
	byIntent     map[string]string
	capabilities map[string]*capability.Capability
	summary      string
}

// Snapshot is an immutable view of every app's intents and capabilities.
type Snapshot struct {
	apps     map[string]*appEntry
	warnings []*DuplicateIntentError
}

// Apps returns the known app IDs, sorted.
func (s *Snapshot) Apps() []string {
	out := make([]string, 0, len(s.apps))
	for id := range s.apps {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IntentsFor returns the allowed intent phrases for an app.
func (s *Snapshot) IntentsFor(appID string) []string {
	entry, ok := s.apps[appID]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.intents...)
}

// CapabilityForIntent resolves an intent phrase to its capability.
func (s *Snapshot) CapabilityForIntent(appID, intent string) (*capability.Capability, bool) {
	entry, ok := s.apps[appID]
	if !ok {
		return nil, false
	}
	name, ok := entry.byIntent[intent]
	if !ok {
		return nil, false
	}
	c, ok := entry.capabilities[name]
	return c, ok
}

// Capability resolves a capability by name.
func (s *Snapshot) Capability(appID, name string) (*capability.Capability, bool) {
	entry, ok := s.apps[appID]
	if !ok {
		return nil, false
	}
	c, ok := entry.capabilities[name]
	return c, ok
}

// SummaryFor returns the app-level capability summary, if one exists.
func (s *Snapshot) SummaryFor(appID string) (string, bool) {
	entry, ok := s.apps[appID]
	if !ok || entry.summary == "" {
		return "", false
	}
	return entry.summary, true
}

// Warnings returns the duplicate-intent conflicts found during the build.
func (s *Snapshot) Warnings() []*DuplicateIntentError {
	return append([]*DuplicateIntentError(nil), s.warnings...)
}

// Catalog owns the current snapshot. Rebuilds are serialized; Load is a
// single atomic pointer read.
type Catalog struct {
	layout workspace.Layout
	logger *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// New returns a catalog with an empty snapshot installed.
func New(layout workspace.Layout, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{layout: layout, logger: logger}
	c.current.Store(&Snapshot{apps: map[string]*appEntry{}})
	return c
}

// Load returns the current snapshot.
func (c *Catalog) Load() *Snapshot {
	return c.current.Load()
}

// Rebuild reads every skills document and installs a fresh snapshot. The
// previous snapshot stays visible until the new one is complete.
func (c *Catalog) Rebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.readSkillsDocs()
	if err != nil {
		return err
	}
	snapshot := buildSnapshot(docs)
	for _, w := range snapshot.warnings {
		c.logger.Warn("duplicate intent phrase",
			zap.String("app_id", w.AppID),
			zap.String("intent", w.Intent),
			zap.String("kept", w.Kept),
			zap.String("dropped", w.Dropped))
	}
	c.current.Store(snapshot)
	c.logger.Info("catalog rebuilt",
		zap.Int("apps", len(snapshot.apps)),
		zap.Int("conflicts", len(snapshot.warnings)))
	return nil
}

func (c *Catalog) readSkillsDocs() ([]describe.AppSkills, error) {
	paths, err := filepath.Glob(filepath.Join(c.layout.SkillsDir(), "*_skills.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var docs []describe.AppSkills
	for _, path := range paths {
		var doc describe.AppSkills
		if err := workspace.ReadJSON(path, &doc); err != nil {
			c.logger.Warn("skipping unreadable skills document",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if doc.AppID == "" {
			doc.AppID = strings.TrimSuffix(filepath.Base(path), "_skills.json")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func buildSnapshot(docs []describe.AppSkills) *Snapshot {
	snapshot := &Snapshot{apps: map[string]*appEntry{}}
	for _, doc := range docs {
		entry, ok := snapshot.apps[doc.AppID]
		if !ok {
			entry = &appEntry{
				byIntent:     map[string]string{},
				capabilities: map[string]*capability.Capability{},
			}
			snapshot.apps[doc.AppID] = entry
		}
		if doc.Summary != "" {
			entry.summary = doc.Summary
		}

		for i := range doc.Skills {
			skill := &doc.Skills[i]
			cp := skill.Capability
			entry.capabilities[cp.Name] = &cp
			if skill.Status != describe.StatusReady {
				continue
			}
			for _, intent := range skill.Intents {
				holder, claimed := entry.byIntent[intent]
				if !claimed {
					entry.byIntent[intent] = cp.Name
					entry.intents = append(entry.intents, intent)
					continue
				}
				if holder == cp.Name {
					continue
				}
				kept, dropped := resolveConflict(entry.capabilities[holder], &cp)
				entry.byIntent[intent] = kept.Name
				snapshot.warnings = append(snapshot.warnings, &DuplicateIntentError{
					AppID:   doc.AppID,
					Intent:  intent,
					Kept:    kept.Name,
					Dropped: dropped.Name,
				})
			}
		}
	}
	return snapshot
}

// resolveConflict keeps the capability compiled most recently; name order
// breaks exact ties so the outcome is deterministic.
func resolveConflict(a, b *capability.Capability) (kept, dropped *capability.Capability) {
	if b.CompiledAt.After(a.CompiledAt) {
		return b, a
	}
	if a.CompiledAt.After(b.CompiledAt) {
		return a, b
	}
	if b.Name < a.Name {
		return b, a
	}
	return a, b
}
