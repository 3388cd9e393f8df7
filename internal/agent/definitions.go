package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"conductor/internal/logging"
	"conductor/internal/types"

	"gopkg.in/yaml.v3"
)

// Definitions is the registry of named agent definitions loaded from YAML
// files (<dir>/<name>.yaml). Safe for concurrent use; the watcher reloads
// changed files in place.
type Definitions struct {
	dir string

	mu   sync.RWMutex
	defs map[string]*types.AgentDefinition
}

// LoadDefinitions reads every *.yaml/*.yml file in dir. A missing directory
// yields an empty registry, not an error. Individual file failures are
// logged and skipped so one bad definition cannot take down the set.
func LoadDefinitions(dir string) (*Definitions, error) {
	d := &Definitions{
		dir:  dir,
		defs: make(map[string]*types.AgentDefinition),
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logging.AgentDebug("Definitions dir %s does not exist, starting empty", dir)
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := d.loadFile(path); err != nil {
			logging.AgentWarn("Skipping definition %s: %v", path, err)
		}
	}

	logging.Agent("Loaded %d agent definitions from %s", d.Count(), dir)
	return d, nil
}

// Get returns the named definition.
func (d *Definitions) Get(name string) (*types.AgentDefinition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	def, ok := d.defs[name]
	return def, ok
}

// Names returns the registered definition names, sorted.
func (d *Definitions) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.defs))
	for name := range d.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered definitions.
func (d *Definitions) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.defs)
}

// Register adds a programmatically built definition.
func (d *Definitions) Register(def *types.AgentDefinition) error {
	if def == nil || def.Name == "" {
		return &types.ValidationError{Field: "name", Reason: "definition name is required"}
	}
	d.mu.Lock()
	d.defs[def.Name] = def
	d.mu.Unlock()
	return nil
}

// loadFile parses one YAML definition and registers it under its declared
// name, defaulting to the file's base name.
func (d *Definitions) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var def types.AgentDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}
	if def.PromptConfig.SystemPrompt == "" {
		return fmt.Errorf("definition %s has no system prompt", def.Name)
	}

	d.mu.Lock()
	d.defs[def.Name] = &def
	d.mu.Unlock()

	logging.AgentDebug("Loaded definition %s from %s", def.Name, path)
	return nil
}

// remove drops definitions that were loaded from the given path. Used by
// the watcher on file deletion; matching is by defaulted name since the
// registry does not track source paths.
func (d *Definitions) remove(path string) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")

	d.mu.Lock()
	if _, ok := d.defs[name]; ok {
		delete(d.defs, name)
		logging.Agent("Removed definition %s (%s deleted)", name, path)
	}
	d.mu.Unlock()
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
