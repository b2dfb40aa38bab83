package noisegeneration

// BiomeType представляет тип местности
type BiomeType int

const (
	BiomeRiver BiomeType = iota
	BiomeShore
	BiomeMeadow
	BiomeForest
	BiomeSteppe
	BiomeHighland
	BiomePeak
)

// String возвращает имя биома
func (b BiomeType) String() string {
	switch b {
	case BiomeRiver:
		return "river"
	case BiomeShore:
		return "shore"
	case BiomeMeadow:
		return "meadow"
	case BiomeForest:
		return "forest"
	case BiomeSteppe:
		return "steppe"
	case BiomeHighland:
		return "highland"
	case BiomePeak:
		return "peak"
	default:
		return "unknown"
	}
}

// GetBiomeType определяет тип местности по нормализованной высоте, влажности и маске реки
func GetBiomeType(height, moisture, river float64) BiomeType {
	if river > 0.6 {
		return BiomeRiver
	}

	if river > 0.2 || height < 0.08 {
		return BiomeShore
	}

	if height > 0.8 {
		return BiomePeak
	}

	if height > 0.6 {
		return BiomeHighland
	}

	if moisture > 0.55 {
		return BiomeForest
	}

	if moisture < 0.25 {
		return BiomeSteppe
	}

	return BiomeMeadow
}

// Biome определяет тип местности в точке сэмплера
func (s *Sampler) Biome(x, z float64) BiomeType {
	amp := s.Amplitude()
	if amp <= 0 {
		amp = 1
	}
	sample := s.Sample(x, z)
	return GetBiomeType(sample.Height/amp, sample.Moisture, sample.River)
}
