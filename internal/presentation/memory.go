package presentation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/annelo/terrain-streamer/internal/chunkmesh"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
)

// MemoryStats - счетчики MemoryPresenter
type MemoryStats struct {
	Attached        int
	Detached        int
	Prepared        int
	ObjectsAttached int
	ObjectsDetached int
	LiveMeshes      int
	LiveObjects     int
}

// MemoryPresenter - сцена в памяти. Используется тестами, сервером и вьюером.
// Потокобезопасен: вьюер читает состояние из своей горутины.
type MemoryPresenter struct {
	mu       sync.RWMutex
	ready    bool
	meshes   map[Handle]*chunkmesh.TerrainChunkData
	objects  map[Handle]decoration.Placement
	failKeys map[terrainmath.ChunkKey]error
	stats    MemoryStats
}

// NewMemoryPresenter создает готовую к работе сцену
func NewMemoryPresenter() *MemoryPresenter {
	return &MemoryPresenter{
		ready:    true,
		meshes:   make(map[Handle]*chunkmesh.TerrainChunkData),
		objects:  make(map[Handle]decoration.Placement),
		failKeys: make(map[terrainmath.ChunkKey]error),
	}
}

func (p *MemoryPresenter) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Teardown имитирует разрушение корня сцены: дальнейшие Attach завершаются ошибкой
func (p *MemoryPresenter) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
}

// FailPrepare заставляет Prepare для ключа вернуть err. nil снимает ошибку.
func (p *MemoryPresenter) FailPrepare(key terrainmath.ChunkKey, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failKeys, key)
		return
	}
	p.failKeys[key] = err
}

func (p *MemoryPresenter) Attach(data *chunkmesh.TerrainChunkData) (Handle, error) {
	if data == nil {
		return "", fmt.Errorf("attach: nil chunk data")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return "", ErrNotReady
	}
	h := Handle(uuid.New().String())
	p.meshes[h] = data
	p.stats.Attached++
	return h, nil
}

func (p *MemoryPresenter) Prepare(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return ErrNotReady
	}
	data, ok := p.meshes[h]
	if !ok {
		return fmt.Errorf("prepare: unknown handle %s", h)
	}
	if err, ok := p.failKeys[data.Key]; ok {
		return err
	}
	p.stats.Prepared++
	return nil
}

func (p *MemoryPresenter) Detach(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.meshes[h]; !ok {
		return
	}
	delete(p.meshes, h)
	p.stats.Detached++
}

func (p *MemoryPresenter) AttachObjects(key terrainmath.ChunkKey, placements []decoration.Placement) ([]Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return nil, ErrNotReady
	}
	handles := make([]Handle, 0, len(placements))
	for _, pl := range placements {
		h := Handle(uuid.New().String())
		pl.Key = key
		p.objects[h] = pl
		handles = append(handles, h)
	}
	p.stats.ObjectsAttached += len(handles)
	return handles, nil
}

func (p *MemoryPresenter) DetachObjects(handles []Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range handles {
		if _, ok := p.objects[h]; ok {
			delete(p.objects, h)
			p.stats.ObjectsDetached++
		}
	}
}

// Stats возвращает снимок счетчиков
func (p *MemoryPresenter) Stats() MemoryStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.stats
	s.LiveMeshes = len(p.meshes)
	s.LiveObjects = len(p.objects)
	return s
}

// Mesh возвращает присоединенный меш по хендлу
func (p *MemoryPresenter) Mesh(h Handle) (*chunkmesh.TerrainChunkData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.meshes[h]
	return d, ok
}

// MeshKeys возвращает ключи всех присоединенных мешей
func (p *MemoryPresenter) MeshKeys() []terrainmath.ChunkKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]terrainmath.ChunkKey, 0, len(p.meshes))
	for _, d := range p.meshes {
		keys = append(keys, d.Key)
	}
	return keys
}

// Objects возвращает присоединенные объекты чанка
func (p *MemoryPresenter) Objects(key terrainmath.ChunkKey) []decoration.Placement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []decoration.Placement
	for _, pl := range p.objects {
		if pl.Key == key {
			out = append(out, pl)
		}
	}
	return out
}
