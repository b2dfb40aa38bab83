// Package config описывает настройки стримера чанков и рецепт генерации мира.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// MinAmplitude - нижняя граница амплитуды при нормализации высоты.
// Защищает от деления на ноль и нечисловых значений в геометрии.
const MinAmplitude = 1e-6

// Config содержит параметры стримера. Значение копируется и принадлежит стримеру.
type Config struct {
	TileSize       float64 `yaml:"tile_size"`       // размер тайла в мировых единицах
	ChunkTilesX    int     `yaml:"chunk_tiles_x"`   // тайлов в чанке по X
	ChunkTilesZ    int     `yaml:"chunk_tiles_z"`   // тайлов в чанке по Z
	HeightScale    float64 `yaml:"height_scale"`    // множитель нормализованной высоты
	PreloadRadius  int     `yaml:"preload_radius"`  // кольцо чанков, которое держим загруженным
	EvictionMargin int     `yaml:"eviction_margin"` // гистерезис выгрузки
	TasksPerFrame  int     `yaml:"tasks_per_frame"` // сколько сборок допускаем за один Update

	SkirtDepth float64 `yaml:"skirt_depth"` // глубина "юбки" по краям чанка
	UVScale    float64 `yaml:"uv_scale"`    // повторение текстуры на тайл

	DecorationYieldEvery int `yaml:"decoration_yield_every"` // объектов декора за один Update
	Workers              int `yaml:"workers"`                // размер пула сборки (0 = NumCPU)
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		TileSize:             2.0,
		ChunkTilesX:          16,
		ChunkTilesZ:          16,
		HeightScale:          48.0,
		PreloadRadius:        3,
		EvictionMargin:       2,
		TasksPerFrame:        4,
		SkirtDepth:           4.0,
		UVScale:              0.25,
		DecorationYieldEvery: 24,
		Workers:              0,
	}
}

// Normalize приводит некорректные значения к безопасному минимуму.
// Нулевой или отрицательный радиус/бюджет дали бы вырожденную бесконечную работу.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.TileSize <= 0 {
		c.TileSize = def.TileSize
	}
	if c.ChunkTilesX < 1 {
		c.ChunkTilesX = 1
	}
	if c.ChunkTilesZ < 1 {
		c.ChunkTilesZ = 1
	}
	if c.HeightScale < 0 {
		c.HeightScale = 0
	}
	if c.PreloadRadius < 1 {
		c.PreloadRadius = 1
	}
	if c.EvictionMargin < 0 {
		c.EvictionMargin = 0
	}
	if c.TasksPerFrame < 1 {
		c.TasksPerFrame = 1
	}
	if c.SkirtDepth < 0 {
		c.SkirtDepth = 0
	}
	if c.UVScale <= 0 {
		c.UVScale = def.UVScale
	}
	if c.DecorationYieldEvery < 1 {
		c.DecorationYieldEvery = 1
	}
	if c.Workers <= 0 {
		c.Workers = max(runtime.NumCPU(), 1)
	}
	return c
}

// ChunkWorldSize возвращает размер чанка в мировых единицах по X и Z
func (c Config) ChunkWorldSize() (float64, float64) {
	return float64(c.ChunkTilesX) * c.TileSize, float64(c.ChunkTilesZ) * c.TileSize
}

// RetainRadius - радиус, внутри которого загруженный чанк не выгружается
func (c Config) RetainRadius() int {
	return c.PreloadRadius + c.EvictionMargin
}

// File - корневой YAML-документ: настройки стримера и рецепт мира
type File struct {
	Streamer Config `yaml:"streamer"`
	Recipe   Recipe `yaml:"recipe"`
}

// Default возвращает полный документ по умолчанию для заданного сида
func Default(seed int64) File {
	return File{Streamer: DefaultConfig(), Recipe: DefaultRecipe(seed)}
}

// Load читает YAML-файл. Отсутствующие поля берутся из значений по умолчанию.
func Load(path string) (File, error) {
	f := Default(0)
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("config: decode %s: %w", path, err)
	}
	f.Streamer = f.Streamer.Normalize()
	f.Recipe = f.Recipe.Normalize()
	return f, nil
}

// Marshal кодирует документ обратно в YAML
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
