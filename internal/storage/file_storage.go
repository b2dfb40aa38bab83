package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const worldFileName = "world.yaml"

// FileStorage хранит WorldInfo в YAML-файле в каталоге мира
type FileStorage struct {
	basePath string
	mu       sync.Mutex
	closed   bool
}

// NewFileStorage создает каталог хранилища при необходимости
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранилища: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

// Path возвращает путь к файлу мира
func (s *FileStorage) Path() string {
	return filepath.Join(s.basePath, worldFileName)
}

// SaveWorld сохраняет информацию о мире. Запись атомарная: временный файл и rename.
func (s *FileStorage) SaveWorld(ctx context.Context, info *WorldInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info == nil {
		return errors.New("пустая информация о мире")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	copyInfo := *info
	copyInfo.LastSaveAt = time.Now().Unix()
	if copyInfo.Version == "" {
		copyInfo.Version = FormatVersion
	}
	data, err := yaml.Marshal(&copyInfo)
	if err != nil {
		return fmt.Errorf("ошибка сериализации мира: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи мира: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("ошибка замены файла мира: %w", err)
	}
	info.LastSaveAt = copyInfo.LastSaveAt
	return nil
}

// LoadWorld загружает информацию о мире
func (s *FileStorage) LoadWorld(ctx context.Context) (*WorldInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrWorldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения мира: %w", err)
	}
	var info WorldInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("ошибка разбора мира: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("ошибка разбора мира %s: %w", s.Path(), err)
	}
	if info.Recipe.Seed == 0 && info.Seed != 0 {
		info.Recipe.Seed = info.Seed
	}
	return &info, nil
}

// Close закрывает хранилище
func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MemoryStorage - хранилище в памяти для тестов и запусков без диска
type MemoryStorage struct {
	mu   sync.Mutex
	info *WorldInfo
}

// NewMemoryStorage создает пустое хранилище
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) SaveWorld(ctx context.Context, info *WorldInfo) error {
	if info == nil {
		return errors.New("пустая информация о мире")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *info
	m.info = &c
	return nil
}

func (m *MemoryStorage) LoadWorld(ctx context.Context) (*WorldInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.info == nil {
		return nil, ErrWorldNotFound
	}
	c := *m.info
	return &c, nil
}

func (m *MemoryStorage) Close() error { return nil }
