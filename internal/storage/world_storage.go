package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/annelo/terrain-streamer/internal/config"
)

// FormatVersion - версия формата файла мира
const FormatVersion = "recipe-1.0.0"

// WorldStorage хранит единственное состояние мира - рецепт генерации.
// Чанки не сохраняются: они детерминированно строятся заново из рецепта.
type WorldStorage interface {
	// SaveWorld сохраняет общую информацию о мире
	SaveWorld(ctx context.Context, info *WorldInfo) error

	// LoadWorld загружает общую информацию о мире
	// Возвращает ErrWorldNotFound, если мир еще не сохранялся
	LoadWorld(ctx context.Context) (*WorldInfo, error)

	// Close закрывает хранилище и освобождает ресурсы
	Close() error
}

// WorldInfo содержит общую информацию о мире
type WorldInfo struct {
	Name       string            `yaml:"name"`
	Seed       int64             `yaml:"seed"`
	Version    string            `yaml:"version"`
	CreatedAt  int64             `yaml:"created_at"`   // Unix timestamp
	LastSaveAt int64             `yaml:"last_save_at"` // Unix timestamp
	Recipe     config.Recipe     `yaml:"recipe"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// ErrWorldNotFound возвращается, когда информация о мире отсутствует
var ErrWorldNotFound = errors.New("мир не найден в хранилище")

// ErrClosed возвращается при обращении к закрытому хранилищу
var ErrClosed = errors.New("хранилище закрыто")

// ErrInvalidWorld возвращается, если файл мира прочитан, но не описывает мир
var ErrInvalidWorld = errors.New("некорректное описание мира")

// Validate проверяет версию формата и имя мира
func (w *WorldInfo) Validate() error {
	switch {
	case w.Version == "":
		return fmt.Errorf("%w: не указана версия формата", ErrInvalidWorld)
	case w.Version != FormatVersion:
		return fmt.Errorf("%w: неизвестная версия формата %q", ErrInvalidWorld, w.Version)
	case w.Name == "":
		return fmt.Errorf("%w: пустое имя мира", ErrInvalidWorld)
	}
	return nil
}

// LoadOrCreate загружает мир или создает новый с рецептом по умолчанию для seed
func LoadOrCreate(ctx context.Context, s WorldStorage, name string, seed int64, now int64) (*WorldInfo, bool, error) {
	info, err := s.LoadWorld(ctx)
	if err == nil {
		// испорченный мир не подменяется новым
		if err := info.Validate(); err != nil {
			return nil, false, err
		}
		info.Recipe = info.Recipe.Normalize()
		return info, false, nil
	}
	if !errors.Is(err, ErrWorldNotFound) {
		return nil, false, err
	}

	info = &WorldInfo{
		Name:       name,
		Seed:       seed,
		Version:    FormatVersion,
		CreatedAt:  now,
		LastSaveAt: now,
		Recipe:     config.DefaultRecipe(seed),
		Properties: make(map[string]string),
	}
	if err := s.SaveWorld(ctx, info); err != nil {
		return nil, false, err
	}
	return info, true, nil
}
