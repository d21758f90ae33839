// Package workspace manages the on-disk layout shared by the compiler
// pipeline and the runtime:
//
//	<root>/<app_id>/input/            raw test classes, app_introduction.txt
//	<root>/<app_id>/extracted_tests/  one @Test method per file
//	<data>/capabilities/<app_id>_capabilities.json
//	<data>/skills/<app_id>_skills.json
//	<data>/intent/intent_list_full.json
//	<data>/intent/intent_method_map.json
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout resolves every path the system reads or writes. Root holds the
// per-app inputs; Data holds the generated documents the runtime loads.
type Layout struct {
	Root string
	Data string
}

func (l Layout) InputDir(appID string) string {
	return filepath.Join(l.Root, appID, "input")
}

func (l Layout) ExtractedDir(appID string) string {
	return filepath.Join(l.Root, appID, "extracted_tests")
}

func (l Layout) CapabilitiesPath(appID string) string {
	return filepath.Join(l.Data, "capabilities", appID+"_capabilities.json")
}

func (l Layout) SkillsDir() string {
	return filepath.Join(l.Data, "skills")
}

func (l Layout) SkillsPath(appID string) string {
	return filepath.Join(l.SkillsDir(), appID+"_skills.json")
}

func (l Layout) IntentListPath() string {
	return filepath.Join(l.Data, "intent", "intent_list_full.json")
}

func (l Layout) IntentMethodMapPath() string {
	return filepath.Join(l.Data, "intent", "intent_method_map.json")
}

// ListApps returns app IDs that have an input directory, sorted.
func (l Layout) ListApps() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, fmt.Errorf("reading workspace root: %w", err)
	}
	var apps []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if info, err := os.Stat(filepath.Join(l.Root, e.Name(), "input")); err == nil && info.IsDir() {
			apps = append(apps, e.Name())
		}
	}
	sort.Strings(apps)
	return apps, nil
}

// InputSources returns the test class files under an app's input
// directory, sorted by name.
func (l Layout) InputSources(appID string) ([]string, error) {
	entries, err := os.ReadDir(l.InputDir(appID))
	if err != nil {
		return nil, fmt.Errorf("reading input dir for %s: %w", appID, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".java", ".kt":
			files = append(files, filepath.Join(l.InputDir(appID), e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// AppIntroduction returns the free-form app description placed next to the
// test classes, if present.
func (l Layout) AppIntroduction(appID string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(l.InputDir(appID), "app_introduction.txt"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// WriteExtracted persists one file per extracted method, named
// <method>.java, mirroring the input language only in content.
func (l Layout) WriteExtracted(appID string, methods []ExtractedMethod) error {
	dir := l.ExtractedDir(appID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, m := range methods {
		path := filepath.Join(dir, m.Name+".java")
		if err := os.WriteFile(path, []byte(m.Source+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// WriteJSON writes a document via a temp file and rename, so concurrent
// readers and the directory watcher never observe a partial document.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
