package registry

import (
	"errors"
	"expvar"
	"fmt"
	"log"
	"sync"
)

// APIVersion defines the current extension API version.
const APIVersion = "1"

// Meta holds metadata for an extension
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Author      string `yaml:"author" json:"author"`
	Description string `yaml:"description" json:"description"`
}

// Extension is a statically linked bundle of systems, placers, hooks and commands.
type Extension interface {
	Meta() Meta
	Register(reg Registry)
}

// Metrics for extension installation
var (
	extensionLoadCount  = expvar.NewInt("extensions_loaded")
	extensionSkipCount  = expvar.NewInt("extensions_skipped")
	extensionErrorCount = expvar.NewInt("extensions_errors")
)

// Manager installs extensions into a registry and loads their configs from ConfigDir.
type Manager struct {
	// ConfigDir holds <name>.yaml files for extension configs; empty disables loading.
	ConfigDir  string
	extensions []Extension
	// mu protects Install from concurrent execution.
	mu sync.Mutex
}

// NewManager creates a Manager for the given extensions.
func NewManager(configDir string, exts ...Extension) *Manager {
	return &Manager{ConfigDir: configDir, extensions: exts}
}

// Install registers every extension whose API version matches.
// Panics in Register are recovered; config errors are collected and returned.
func (m *Manager) Install(reg Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, ext := range m.extensions {
		meta := ext.Meta()
		if meta.Version != APIVersion {
			log.Printf("[Extensions] skipping %s: version mismatch (got %s, expected %s)", meta.Name, meta.Version, APIVersion)
			extensionSkipCount.Add(1)
			continue
		}
		reg.Dispatch(HookBeforeInstall, meta)

		ok := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					extensionErrorCount.Add(1)
					log.Printf("[Extensions] panic in %s Register: %v", meta.Name, r)
					ok = false
				}
			}()
			ext.Register(reg)
			return true
		}()
		if !ok {
			continue
		}

		if m.ConfigDir != "" {
			if err := reg.LoadConfig(meta.Name, m.ConfigDir); err != nil {
				extensionErrorCount.Add(1)
				errs = append(errs, fmt.Errorf("extension %s: %w", meta.Name, err))
			}
		}
		reg.RegisterMeta(meta)
		extensionLoadCount.Add(1)
		reg.Dispatch(HookAfterInstall, meta)
	}
	return errors.Join(errs...)
}

// Uninstall triggers uninstall hooks for all installed extensions.
func (m *Manager) Uninstall(reg Registry) {
	metas := reg.Metas()
	for _, meta := range metas {
		reg.Dispatch(HookBeforeUninstall, meta)
	}
	for _, meta := range metas {
		reg.Dispatch(HookAfterUninstall, meta)
	}
}

// Reload uninstalls existing extensions, clears their registrations and installs them again.
func (m *Manager) Reload(reg Registry) error {
	m.Uninstall(reg)
	reg.ClearExtensions()
	return m.Install(reg)
}
