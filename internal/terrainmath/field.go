package terrainmath

import (
	"math"

	"github.com/annelo/terrain-streamer/internal/config"
)

// RiverGateThreshold - маска реки, начиная с которой точка считается руслом
const RiverGateThreshold = 0.15

// HeightSource - детерминированные скалярные поля в тайловых координатах
type HeightSource interface {
	Height(x, z float64) float64
	River(x, z float64) float64
	Moisture(x, z float64) float64
	Slope(x, z float64) float64
	Amplitude() float64
}

// Field - единственный источник высоты поверхности. Меш, запросы высоты земли
// и фильтры декора обязаны читать рельеф только через него.
// Значение неизменяемое и безопасно для конкурентного использования, если
// безопасен HeightSource.
type Field struct {
	src         HeightSource
	tileSize    float64
	heightScale float64
	tilesX      int
	tilesZ      int
}

// NewField создает поле для сэмплера и настроек стримера
func NewField(src HeightSource, cfg config.Config) Field {
	cfg = cfg.Normalize()
	return Field{
		src:         src,
		tileSize:    cfg.TileSize,
		heightScale: cfg.HeightScale,
		tilesX:      cfg.ChunkTilesX,
		tilesZ:      cfg.ChunkTilesZ,
	}
}

// TileSize возвращает размер тайла
func (f Field) TileSize() float64 { return f.tileSize }

// HeightScale возвращает вертикальный масштаб
func (f Field) HeightScale() float64 { return f.heightScale }

// ChunkTiles возвращает размер чанка в тайлах
func (f Field) ChunkTiles() (int, int) { return f.tilesX, f.tilesZ }

// NormalizedHeight возвращает высоту от 0 до 1 с учетом вырезанных рек
func (f Field) NormalizedHeight(tileX, tileZ float64) float64 {
	amp := math.Max(f.src.Amplitude(), config.MinAmplitude)
	h := f.src.Height(tileX, tileZ) / amp
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	return clamp01(h)
}

// SurfaceY возвращает мировую высоту поверхности в узле тайловой сетки
func (f Field) SurfaceY(tileX, tileZ float64) float64 {
	return f.NormalizedHeight(tileX, tileZ) * f.heightScale
}

// WorldSlope возвращает уклон в мировых единицах (подъем на единицу длины)
func (f Field) WorldSlope(tileX, tileZ float64) float64 {
	amp := math.Max(f.src.Amplitude(), config.MinAmplitude)
	s := f.src.Slope(tileX, tileZ) / amp * f.heightScale / f.tileSize
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// River возвращает маску реки в тайловых координатах
func (f Field) River(tileX, tileZ float64) float64 {
	return f.src.River(tileX, tileZ)
}

// Moisture возвращает влажность в тайловых координатах
func (f Field) Moisture(tileX, tileZ float64) float64 {
	return f.src.Moisture(tileX, tileZ)
}

// ChunkOrigin возвращает тайловую координату угла чанка
func (f Field) ChunkOrigin(key ChunkKey) (int, int) {
	return key.X * f.tilesX, key.Y * f.tilesZ
}

// KeyForWorld возвращает ключ чанка для мировой точки
func (f Field) KeyForWorld(worldX, worldZ float64) ChunkKey {
	return KeyForPosition(worldX, worldZ, float64(f.tilesX)*f.tileSize, float64(f.tilesZ)*f.tileSize)
}

// GroundHeight возвращает высоту поверхности меша в мировой точке.
// Интерполяция повторяет разбиение тайла на два треугольника по диагонали
// (i+1, j) - (i, j+1), поэтому совпадает с отрисованной геометрией.
func (f Field) GroundHeight(worldX, worldZ float64) float64 {
	tx := worldX / f.tileSize
	tz := worldZ / f.tileSize
	i := math.Floor(tx)
	j := math.Floor(tz)
	fx := tx - i
	fz := tz - j

	if fx+fz <= 1 {
		h00 := f.SurfaceY(i, j)
		h10 := f.SurfaceY(i+1, j)
		h01 := f.SurfaceY(i, j+1)
		return h00 + (h10-h00)*fx + (h01-h00)*fz
	}
	h11 := f.SurfaceY(i+1, j+1)
	h10 := f.SurfaceY(i+1, j)
	h01 := f.SurfaceY(i, j+1)
	return h11 + (h01-h11)*(1-fx) + (h10-h11)*(1-fz)
}

// GateRule - условия допуска точки для расстановки объектов
type GateRule struct {
	MinHeight   float64 // нормализованная высота
	MaxHeight   float64
	MinMoisture float64
	MaxSlope    float64 // мировой уклон, 0 = без ограничения
	AvoidRivers bool
}

// RuleFromRecipe строит правило из рецепта прохода декора
func RuleFromRecipe(p config.PlacementRecipe) GateRule {
	maxH := p.MaxHeight
	if maxH <= 0 {
		maxH = 1
	}
	return GateRule{
		MinHeight:   p.MinHeight,
		MaxHeight:   maxH,
		MinMoisture: p.MinMoisture,
		MaxSlope:    p.MaxSlope,
		AvoidRivers: p.AvoidRivers,
	}
}

// Gate проверяет, можно ли ставить объект в точке
func (f Field) Gate(tileX, tileZ float64, rule GateRule) bool {
	if rule.AvoidRivers && f.River(tileX, tileZ) >= RiverGateThreshold {
		return false
	}
	h := f.NormalizedHeight(tileX, tileZ)
	if h < rule.MinHeight || h > rule.MaxHeight {
		return false
	}
	if rule.MinMoisture > 0 && f.Moisture(tileX, tileZ) < rule.MinMoisture {
		return false
	}
	if rule.MaxSlope > 0 && f.WorldSlope(tileX, tileZ) > rule.MaxSlope {
		return false
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
