package registry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/gameloop"
)

// HookType defines a named event hook
type HookType string

// Hook types fired by the world wiring and the extension manager
const (
	// HookChunkAttached receives (terrainmath.ChunkKey, *chunkmesh.TerrainChunkData).
	HookChunkAttached HookType = "ChunkAttached"
	// HookChunkDecorated receives (terrainmath.ChunkKey, decoration.Result).
	HookChunkDecorated HookType = "ChunkDecorated"
	// HookChunkRemoved receives (terrainmath.ChunkKey).
	HookChunkRemoved HookType = "ChunkRemoved"
	// Extension install/uninstall hook types receive (Meta).
	HookBeforeInstall   HookType = "BeforeInstall"
	HookAfterInstall    HookType = "AfterInstall"
	HookBeforeUninstall HookType = "BeforeUninstall"
	HookAfterUninstall  HookType = "AfterUninstall"
)

// HookFunc is the signature for hook handlers. args are event-specific.
type HookFunc func(args ...interface{})

// CommandFunc is the signature for admin CLI command handlers.
type CommandFunc func(args []string) (string, error)

// CommandRegistration holds a single CLI command registration.
type CommandRegistration struct {
	Name        string
	Description string
	Handler     CommandFunc
}

// Registry collects game systems, decoration placers, hooks, admin commands
// and extension configs.
type Registry interface {
	// RegisterGameSystem registers a game loop system to be ticked every tick.
	RegisterGameSystem(sys gameloop.System)
	// GameSystems returns all registered game loop systems.
	GameSystems() []gameloop.System
	// RegisterPlacer registers an extra decoration pass.
	RegisterPlacer(p decoration.Placer)
	// Placers returns all registered decoration passes.
	Placers() []decoration.Placer
	// RegisterMeta registers metadata for an extension.
	RegisterMeta(meta Meta)
	// Metas returns all registered extension metadata.
	Metas() []Meta
	// RegisterHook registers a hook handler for a given hook type.
	RegisterHook(hook HookType, fn HookFunc)
	// Hooks returns all handlers registered for a hook type.
	Hooks(hook HookType) []HookFunc
	// Dispatch calls every handler for hook, recovering panics.
	Dispatch(hook HookType, args ...interface{})
	// RegisterCommand registers an admin CLI command.
	RegisterCommand(name, description string, handler CommandFunc)
	// Commands returns all registered admin CLI commands sorted by name.
	Commands() []CommandRegistration
	// Command looks up a command by name.
	Command(name string) (CommandRegistration, bool)
	// MarkCore marks the boundary between core and extension registrations.
	MarkCore()
	// ClearExtensions removes all registrations added after MarkCore.
	ClearExtensions()
	// RegisterConfig registers a sample config struct pointer for an extension.
	RegisterConfig(name string, sample interface{})
	// LoadConfig loads an extension's config YAML from dir/name.yaml.
	LoadConfig(name, dir string) error
	// Config returns the loaded config object for an extension.
	Config(name string) interface{}
}

// DefaultRegistry is the default implementation of Registry.
type DefaultRegistry struct {
	gameSystems   []gameloop.System
	placers       []decoration.Placer
	metas         []Meta
	commands      []CommandRegistration
	hooks         map[HookType][]HookFunc
	configSamples map[string]interface{}
	configs       map[string]interface{}
	// mu protects all registry data structures for concurrent access.
	mu sync.RWMutex

	coreSystemCount  int
	corePlacerCount  int
	coreCommandCount int
	coreMetaCount    int
	coreHooks        map[HookType][]HookFunc
}

// NewDefaultRegistry returns a new DefaultRegistry instance.
func NewDefaultRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		hooks:         make(map[HookType][]HookFunc),
		configSamples: make(map[string]interface{}),
		configs:       make(map[string]interface{}),
	}
}

func (r *DefaultRegistry) RegisterGameSystem(sys gameloop.System) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameSystems = append(r.gameSystems, sys)
}

func (r *DefaultRegistry) GameSystems() []gameloop.System {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]gameloop.System(nil), r.gameSystems...)
}

func (r *DefaultRegistry) RegisterPlacer(p decoration.Placer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placers = append(r.placers, p)
}

func (r *DefaultRegistry) Placers() []decoration.Placer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]decoration.Placer(nil), r.placers...)
}

func (r *DefaultRegistry) RegisterMeta(meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas = append(r.metas, meta)
}

func (r *DefaultRegistry) Metas() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Meta(nil), r.metas...)
}

func (r *DefaultRegistry) RegisterHook(hook HookType, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[hook] = append(r.hooks[hook], fn)
}

func (r *DefaultRegistry) Hooks(hook HookType) []HookFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HookFunc(nil), r.hooks[hook]...)
}

// Dispatch invokes handlers outside the lock so a handler may register more hooks.
func (r *DefaultRegistry) Dispatch(hook HookType, args ...interface{}) {
	for _, h := range r.Hooks(hook) {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("[Registry] panic in %s hook: %v", hook, rec)
				}
			}()
			h(args...)
		}()
	}
}

func (r *DefaultRegistry) RegisterCommand(name, description string, handler CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, CommandRegistration{Name: name, Description: description, Handler: handler})
}

func (r *DefaultRegistry) Commands() []CommandRegistration {
	r.mu.RLock()
	out := append([]CommandRegistration(nil), r.commands...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Command returns the most recent registration for name.
func (r *DefaultRegistry) Command(name string) (CommandRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.commands) - 1; i >= 0; i-- {
		if r.commands[i].Name == name {
			return r.commands[i], true
		}
	}
	return CommandRegistration{}, false
}

func (r *DefaultRegistry) RegisterConfig(name string, sample interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configSamples[name] = sample
	r.configs[name] = sample
}

// LoadConfig loads dir/name.yaml into a fresh copy of the registered sample.
// A missing file keeps the sample.
func (r *DefaultRegistry) LoadConfig(name, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sample, ok := r.configSamples[name]
	if !ok {
		return nil
	}
	t := reflect.TypeOf(sample)
	if t.Kind() != reflect.Ptr {
		return fmt.Errorf("config sample for %s must be a pointer to struct", name)
	}
	// начинаем с копии образца, чтобы незаданные поля сохранили значения по умолчанию
	newPtr := reflect.New(t.Elem())
	newPtr.Elem().Set(reflect.ValueOf(sample).Elem())
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, newPtr.Interface()); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	r.configs[name] = newPtr.Interface()
	return nil
}

func (r *DefaultRegistry) Config(name string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name]
}

// MarkCore marks the current registry state as the core, so extension additions can be cleared later.
func (r *DefaultRegistry) MarkCore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coreSystemCount = len(r.gameSystems)
	r.corePlacerCount = len(r.placers)
	r.coreCommandCount = len(r.commands)
	r.coreMetaCount = len(r.metas)
	r.coreHooks = make(map[HookType][]HookFunc, len(r.hooks))
	for k, v := range r.hooks {
		r.coreHooks[k] = append([]HookFunc{}, v...)
	}
}

// ClearExtensions removes all registrations added after the last core mark.
func (r *DefaultRegistry) ClearExtensions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.coreSystemCount <= len(r.gameSystems) {
		r.gameSystems = r.gameSystems[:r.coreSystemCount]
	}
	if r.corePlacerCount <= len(r.placers) {
		r.placers = r.placers[:r.corePlacerCount]
	}
	if r.coreCommandCount <= len(r.commands) {
		r.commands = r.commands[:r.coreCommandCount]
	}
	if r.coreMetaCount <= len(r.metas) {
		r.metas = r.metas[:r.coreMetaCount]
	}
	r.hooks = make(map[HookType][]HookFunc, len(r.coreHooks))
	for k, v := range r.coreHooks {
		r.hooks[k] = append([]HookFunc{}, v...)
	}
}
