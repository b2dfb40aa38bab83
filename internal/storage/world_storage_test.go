package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/terrain-streamer/internal/config"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(filepath.Join(dir, "world"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.LoadWorld(ctx)
	assert.ErrorIs(t, err, ErrWorldNotFound)

	info := &WorldInfo{Name: "test", Seed: 42, CreatedAt: 100, Recipe: config.DefaultRecipe(42)}
	require.NoError(t, s.SaveWorld(ctx, info))
	assert.NotZero(t, info.LastSaveAt, "время сохранения проставляется")

	got, err := s.LoadWorld(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, FormatVersion, got.Version)
	assert.Equal(t, config.DefaultRecipe(42), got.Recipe, "рецепт восстанавливается полностью")

	require.NoError(t, s.Close())
	_, err = s.LoadWorld(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	cases := map[string]string{
		"не yaml":         "::: not yaml",
		"список":          "[1, 2]",
		"без версии":      "name: w\nseed: 5\n",
		"чужая версия":    "name: w\nseed: 5\nversion: region-2.0\n",
		"без имени":       "seed: 5\nversion: " + FormatVersion + "\n",
		"пустой документ": "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := NewFileStorage(t.TempDir())
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(s.Path(), []byte(body), 0644))

			_, err = s.LoadWorld(context.Background())
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrWorldNotFound)
		})
	}
}

func TestLoadOrCreate_KeepsCorruptWorld(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), []byte("::: not yaml"), 0644))

	info, created, err := LoadOrCreate(ctx, s, "w", 7, 1000)
	assert.ErrorIs(t, err, ErrInvalidWorld)
	assert.Nil(t, info)
	assert.False(t, created)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "::: not yaml", string(data), "файл мира не перезаписывается")
}

func TestWorldInfo_Validate(t *testing.T) {
	ok := &WorldInfo{Name: "w", Version: FormatVersion}
	assert.NoError(t, ok.Validate())
	assert.ErrorIs(t, (&WorldInfo{Name: "w"}).Validate(), ErrInvalidWorld)
	assert.ErrorIs(t, (&WorldInfo{Version: FormatVersion}).Validate(), ErrInvalidWorld)
	assert.ErrorIs(t, (&WorldInfo{Name: "w", Version: "0.1"}).Validate(), ErrInvalidWorld)
}

func TestLoadOrCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	info, created, err := LoadOrCreate(ctx, m, "w", 7, 1000)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(7), info.Recipe.Seed)

	again, created, err := LoadOrCreate(ctx, m, "other", 99, 2000)
	require.NoError(t, err)
	assert.False(t, created, "существующий мир не пересоздается")
	assert.Equal(t, "w", again.Name)
	assert.Equal(t, int64(7), again.Seed)
}
