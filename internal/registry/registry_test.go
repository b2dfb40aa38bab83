package registry_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/gameloop"
	"github.com/annelo/terrain-streamer/internal/registry"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

type nopPlacer struct{}

func (nopPlacer) Kind() decoration.Kind { return decoration.KindMarker }
func (nopPlacer) Place(terrainmath.ChunkKey, terrainmath.Field, *rand.Rand) []decoration.Placement {
	return nil
}

func TestDefaultRegistry_RegisterAndRetrieve(t *testing.T) {
	reg := registry.NewDefaultRegistry()

	sys := gameloop.NewStreamerSystem()
	reg.RegisterGameSystem(sys)
	systems := reg.GameSystems()
	require.Len(t, systems, 1, "expected one game system")
	assert.Equal(t, sys, systems[0])

	reg.RegisterPlacer(nopPlacer{})
	assert.Len(t, reg.Placers(), 1)

	meta := registry.Meta{Name: "test", Version: "1.0.0", Author: "dev", Description: "desc"}
	reg.RegisterMeta(meta)
	require.Len(t, reg.Metas(), 1)
	assert.Equal(t, meta, reg.Metas()[0])

	var got terrainmath.ChunkKey
	reg.RegisterHook(registry.HookChunkRemoved, func(args ...interface{}) {
		if len(args) == 1 {
			got, _ = args[0].(terrainmath.ChunkKey)
		}
	})
	assert.Len(t, reg.Hooks(registry.HookChunkRemoved), 1)
	reg.Dispatch(registry.HookChunkRemoved, terrainmath.ChunkKey{X: 1, Y: 2})
	assert.Equal(t, terrainmath.ChunkKey{X: 1, Y: 2}, got)

	reg.RegisterCommand("zeta", "last", func(args []string) (string, error) { return "z", nil })
	reg.RegisterCommand("alpha", "first", func(args []string) (string, error) {
		return "out: " + strings.Join(args, ","), nil
	})
	cmds := reg.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "alpha", cmds[0].Name, "commands are sorted by name")
	cmd, ok := reg.Command("alpha")
	require.True(t, ok)
	out, err := cmd.Handler([]string{"a", "b"})
	assert.NoError(t, err)
	assert.Equal(t, "out: a,b", out)
	_, ok = reg.Command("missing")
	assert.False(t, ok)
}

func TestDefaultRegistry_DispatchRecoversPanics(t *testing.T) {
	reg := registry.NewDefaultRegistry()
	called := false
	reg.RegisterHook(registry.HookChunkAttached, func(args ...interface{}) { panic("boom") })
	reg.RegisterHook(registry.HookChunkAttached, func(args ...interface{}) { called = true })

	assert.NotPanics(t, func() { reg.Dispatch(registry.HookChunkAttached) })
	assert.True(t, called, "later hooks still run after a panic")
}

func TestDefaultRegistry_MarkCoreAndClearExtensions(t *testing.T) {
	reg := registry.NewDefaultRegistry()
	cmdFunc := func(args []string) (string, error) { return "", nil }

	reg.RegisterGameSystem(gameloop.NewStreamerSystem())
	reg.RegisterPlacer(nopPlacer{})
	reg.RegisterMeta(registry.Meta{Name: "core", Version: registry.APIVersion})
	reg.RegisterHook(registry.HookChunkAttached, func(args ...interface{}) {})
	reg.RegisterCommand("corecmd", "core command", cmdFunc)
	reg.MarkCore()

	reg.RegisterGameSystem(gameloop.NewStatsSystem(10))
	reg.RegisterPlacer(nopPlacer{})
	reg.RegisterMeta(registry.Meta{Name: "ext", Version: registry.APIVersion})
	reg.RegisterHook(registry.HookChunkDecorated, func(args ...interface{}) {})
	reg.RegisterCommand("extcmd", "extension command", cmdFunc)

	assert.Len(t, reg.GameSystems(), 2)
	assert.Len(t, reg.Placers(), 2)
	assert.Len(t, reg.Metas(), 2)
	assert.Len(t, reg.Hooks(registry.HookChunkDecorated), 1)
	assert.Len(t, reg.Commands(), 2)

	reg.ClearExtensions()

	assert.Len(t, reg.GameSystems(), 1)
	assert.Len(t, reg.Placers(), 1)
	assert.Len(t, reg.Metas(), 1)
	assert.Len(t, reg.Hooks(registry.HookChunkAttached), 1)
	assert.Len(t, reg.Hooks(registry.HookChunkDecorated), 0)
	assert.Len(t, reg.Commands(), 1)
}

func TestDefaultRegistry_LoadConfig(t *testing.T) {
	type SampleConfig struct {
		Value int    `yaml:"value"`
		Name  string `yaml:"name"`
		Keep  string `yaml:"keep"`
	}
	reg := registry.NewDefaultRegistry()
	reg.RegisterConfig("sample", &SampleConfig{Keep: "default"})

	dir := t.TempDir()
	require.NoError(t, reg.LoadConfig("sample", dir), "missing file keeps the sample")
	assert.Equal(t, "default", reg.Config("sample").(*SampleConfig).Keep)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte("value: 42\nname: hello"), 0644))
	require.NoError(t, reg.LoadConfig("sample", dir))
	sc, ok := reg.Config("sample").(*SampleConfig)
	require.True(t, ok, "expected SampleConfig pointer")
	assert.Equal(t, 42, sc.Value)
	assert.Equal(t, "hello", sc.Name)
	assert.Equal(t, "default", sc.Keep, "unset fields keep sample values")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("value: [1"), 0644))
	reg.RegisterConfig("bad", &SampleConfig{})
	assert.Error(t, reg.LoadConfig("bad", dir))

	reg.RegisterConfig("notptr", SampleConfig{})
	assert.Error(t, reg.LoadConfig("notptr", dir))
}

func TestDefaultRegistry_ConcurrentAccess(t *testing.T) {
	reg := registry.NewDefaultRegistry()
	const N = 100
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.RegisterPlacer(nopPlacer{})
		}()
		go func() {
			defer wg.Done()
			_ = reg.Placers()
		}()
	}
	wg.Wait()
	assert.Len(t, reg.Placers(), N)
}
