package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/noisegeneration"
)

var (
	width      = flag.Int("w", 60, "Ширина карты в символах")
	height     = flag.Int("h", 24, "Высота карты в символах")
	step       = flag.Float64("step", 4, "Шаг выборки в тайлах")
	seed       = flag.Int64("seed", 0, "Сид рецепта (0 = по времени)")
	configPath = flag.String("config", "", "YAML-файл с рецептом (перекрывает -seed)")
)

func main() {
	flag.Parse()

	recipe := config.DefaultRecipe(*seed)
	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Не удалось прочитать конфигурацию: %v", err)
		}
		recipe = f.Recipe
	} else if *seed == 0 {
		recipe = config.DefaultRecipe(time.Now().UnixNano())
	}
	recipe = recipe.Normalize()
	fmt.Printf("Seed: %d\n", recipe.Seed)

	sampler := noisegeneration.NewSampler(recipe)

	fmt.Println("\nКарта высот:")
	visualizeHeightMap(sampler)

	fmt.Println("\nКарта рек:")
	visualizeRiverMap(sampler)

	fmt.Println("\nКарта биомов:")
	visualizeBiomeMap(sampler)
}

// visualizeHeightMap выводит высоту с учетом вырезанных рек
func visualizeHeightMap(s *noisegeneration.Sampler) {
	// Символы для различных высот от низкой к высокой
	chars := []rune{'~', '.', '-', '=', '#', '^', '*', '@'}
	amp := s.Amplitude()

	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			h := s.Height(float64(x)**step, float64(y)**step) / amp
			idx := int(h * float64(len(chars)-1))
			idx = max(0, min(idx, len(chars)-1))
			fmt.Print(string(chars[idx]))
		}
		fmt.Println()
	}
}

// visualizeRiverMap выводит маску рек
func visualizeRiverMap(s *noisegeneration.Sampler) {
	chars := []rune{' ', '.', ':', 'o', 'O', '#'}

	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			r := s.River(float64(x)**step, float64(y)**step)
			idx := int(r * float64(len(chars)-1))
			idx = max(0, min(idx, len(chars)-1))
			fmt.Print(string(chars[idx]))
		}
		fmt.Println()
	}
}

// visualizeBiomeMap выводит тип местности
func visualizeBiomeMap(s *noisegeneration.Sampler) {
	biomeChars := map[noisegeneration.BiomeType]rune{
		noisegeneration.BiomeRiver:    '~', // русло
		noisegeneration.BiomeShore:    ',', // берег
		noisegeneration.BiomeMeadow:   '_', // луг
		noisegeneration.BiomeForest:   'f', // лес
		noisegeneration.BiomeSteppe:   '.', // степь
		noisegeneration.BiomeHighland: '^', // нагорье
		noisegeneration.BiomePeak:     '*', // вершины
	}

	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			biome := s.Biome(float64(x)**step, float64(y)**step)
			fmt.Print(string(biomeChars[biome]))
		}
		fmt.Println()
	}
}
