package plugin

import (
	"fmt"
	"path/filepath"
	goplugin "plugin"
	"strings"
)

// LoadMode selects how the Loader discovers plugin descriptors.
type LoadMode string

const (
	// StaticMode: plugins are registered at compile time (e.g. a main.go
	// that imports plugin packages for their init() side effects); the
	// loader only validates the resulting dependency graph.
	StaticMode LoadMode = "static"
	// DynamicMode: plugins are compiled as Go plugin (.so) files and
	// discovered at runtime from a directory.
	DynamicMode LoadMode = "dynamic"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Mode     LoadMode
	Path     string   // directory to search in DynamicMode
	Patterns []string // glob patterns matched against Path in DynamicMode
}

// Loader populates a Registry either by validating statically-registered
// plugins or by opening Go plugin (.so) files at runtime.
type Loader struct {
	config   LoaderConfig
	registry *Registry
}

// NewLoader constructs a Loader over registry.
func NewLoader(config LoaderConfig, registry *Registry) *Loader {
	return &Loader{config: config, registry: registry}
}

// Load runs discovery per l.config.Mode and validates the resulting
// dependency graph.
func (l *Loader) Load() error {
	if l.config.Mode == StaticMode {
		return l.validateStaticPlugins()
	}
	return l.loadDynamicPlugins()
}

func (l *Loader) validateStaticPlugins() error {
	_, err := l.registry.GetLoadOrder()
	if err != nil {
		return fmt.Errorf("plugin dependency validation failed: %w", err)
	}
	return nil
}

func (l *Loader) loadDynamicPlugins() error {
	files, err := l.discoverPluginFiles()
	if err != nil {
		return fmt.Errorf("failed to discover plugin files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no plugin files found in path: %s", l.config.Path)
	}

	for _, file := range files {
		if err := l.loadPlugin(file); err != nil {
			return fmt.Errorf("failed to load plugin %s: %w", file, err)
		}
	}

	_, err = l.registry.GetLoadOrder()
	if err != nil {
		return fmt.Errorf("plugin dependency validation failed: %w", err)
	}
	return nil
}

func (l *Loader) discoverPluginFiles() ([]string, error) {
	files := make([]string, 0)
	for _, pattern := range l.config.Patterns {
		fullPattern := filepath.Join(l.config.Path, pattern)
		matches, err := filepath.Glob(fullPattern)
		if err != nil {
			return nil, fmt.Errorf("failed to match pattern %s: %w", fullPattern, err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// loadPlugin opens a Go plugin (.so) file and invokes its exported
// Register(*Registry) error function, which is expected to call
// Registry.Register with its own Descriptor.
func (l *Loader) loadPlugin(file string) error {
	p, err := goplugin.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open plugin file %s: %w", file, err)
	}

	symbol, err := p.Lookup("Register")
	if err != nil {
		return fmt.Errorf("plugin %s does not export Register function: %w", file, err)
	}

	registerFunc, ok := symbol.(func(*Registry) error)
	if !ok {
		return fmt.Errorf("plugin %s Register function has invalid signature", file)
	}

	if err := registerFunc(l.registry); err != nil {
		return fmt.Errorf("plugin %s registration failed: %w", file, err)
	}

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	fmt.Printf("loaded plugin: %s\n", name)
	return nil
}
