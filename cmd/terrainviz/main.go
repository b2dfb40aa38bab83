package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	termbox "github.com/nsf/termbox-go"

	"github.com/annelo/terrain-streamer/internal/chunkmanager"
	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/storage"
	"github.com/annelo/terrain-streamer/internal/terrainmath"
	"github.com/annelo/terrain-streamer/internal/world"
)

var (
	seed       = flag.Int64("seed", 1, "Сид рецепта")
	configPath = flag.String("config", "", "YAML-файл с настройками стримера и рецептом")
	radius     = flag.Int("radius", 0, "Радиус предзагрузки (0 = из конфигурации)")
	tick       = flag.Duration("tick", 50*time.Millisecond, "Интервал вызова Update")
	startX     = flag.Float64("startX", 0, "Начальная мировая координата X наблюдателя")
	startZ     = flag.Float64("startZ", 0, "Начальная мировая координата Z наблюдателя")
)

// viewMode - что рисуем в ячейках
type viewMode int

const (
	modeChunks viewMode = iota // состояние чанков, одна ячейка = один чанк
	modeHeight                 // рельеф вокруг наблюдателя, одна ячейка = один тайл
)

func main() {
	flag.Parse()

	file := config.Default(*seed)
	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		file = f
	}
	if *radius > 0 {
		file.Streamer.PreloadRadius = *radius
	}

	info := &storage.WorldInfo{Name: "terrainviz", Seed: file.Recipe.Seed, Version: storage.FormatVersion, Recipe: file.Recipe}
	w, err := world.NewWorld(info, file.Streamer, world.Options{})
	if err != nil {
		log.Fatalf("world: %v", err)
	}
	defer w.Streamer.Close()

	if err := termbox.Init(); err != nil {
		log.Fatalf("termbox init error: %v", err)
	}
	defer termbox.Close()

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ctx := context.Background()
	pos := mgl32.Vec3{float32(*startX), 0, float32(*startZ)}
	cw, cz := w.Config.ChunkWorldSize()
	mode := modeChunks
	ticker := time.NewTicker(*tick)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case termbox.EventKey:
				dx, dz := 0.0, 0.0
				switch ev.Key {
				case termbox.KeyEsc, termbox.KeyCtrlC:
					return
				case termbox.KeyArrowLeft:
					dx = -cw / 2
				case termbox.KeyArrowRight:
					dx = cw / 2
				case termbox.KeyArrowUp:
					dz = -cz / 2
				case termbox.KeyArrowDown:
					dz = cz / 2
				default:
					switch ev.Ch {
					case 'q':
						return
					case 'm':
						mode = (mode + 1) % 2
					case 'a':
						dx = -w.Field.TileSize()
					case 'd':
						dx = w.Field.TileSize()
					case 'w':
						dz = -w.Field.TileSize()
					case 's':
						dz = w.Field.TileSize()
					}
				}
				pos[0] += float32(dx)
				pos[2] += float32(dz)
			case termbox.EventError:
				log.Printf("termbox error: %v", ev.Err)
				return
			}
		case <-ticker.C:
			pos[1] = float32(w.Field.GroundHeight(float64(pos[0]), float64(pos[2])))
			if err := w.Streamer.Update(ctx, pos); err != nil {
				log.Printf("update error: %v", err)
				return
			}
		}
		draw(w, pos, mode)
	}
}

func draw(w *world.World, pos mgl32.Vec3, mode viewMode) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	width, height := termbox.Size()

	switch mode {
	case modeChunks:
		drawChunks(w, width, height)
	case modeHeight:
		drawHeights(w, pos, width, height)
	}

	st := w.Streamer.Stats()
	header := fmt.Sprintf("Obs=(%.1f,%.1f,%.1f) Center=%s Loaded=%d Pending=%d Queued=%d Decorated=%d Beacons=%d",
		pos[0], pos[1], pos[2], st.Center, st.Loaded, st.Pending, st.Queued, st.Decorated, w.BeaconCount())
	printLine(0, header, termbox.ColorYellow|termbox.AttrBold, width)
	footer := fmt.Sprintf("Built=%d Attached=%d Evicted=%d Discarded=%d Objects=%d  [arrows/wasd move, m mode, q quit]",
		st.Built, st.Attached, st.Evicted, st.Discarded, st.ObjectsAttached)
	printLine(1, footer, termbox.ColorWhite, width)
	termbox.Flush()
}

func printLine(y int, s string, fg termbox.Attribute, width int) {
	for i, r := range s {
		if i >= width {
			break
		}
		termbox.SetCell(i, y, r, fg, termbox.ColorBlack)
	}
}

// drawChunks рисует окно ключей вокруг центра стримера
func drawChunks(w *world.World, width, height int) {
	snap := w.Streamer.Snapshot()
	center := snap.Stats.Center
	rows := height - 2
	for py := 0; py < rows; py++ {
		for px := 0; px < width/2; px++ {
			key := terrainmath.ChunkKey{X: center.X + px - width/4, Y: center.Y + py - rows/2}
			ch, fg := chunkSymbol(snap, key)
			if key == center {
				ch, fg = '@', termbox.ColorRed|termbox.AttrBold
			}
			termbox.SetCell(2*px, py+2, ch, fg, termbox.ColorBlack)
		}
	}
}

func chunkSymbol(snap chunkmanager.Snapshot, key terrainmath.ChunkKey) (rune, termbox.Attribute) {
	switch snap.States[key] {
	case chunkmanager.StateQueued:
		return '.', termbox.ColorBlue
	case chunkmanager.StateBuilding:
		return 'o', termbox.ColorYellow
	case chunkmanager.StateLoaded:
		if snap.Decorated[key] {
			return '#', termbox.ColorGreen
		}
		return '+', termbox.ColorCyan
	default:
		return ' ', termbox.ColorDefault
	}
}

// drawHeights рисует нормализованную высоту тайлов вокруг наблюдателя
func drawHeights(w *world.World, pos mgl32.Vec3, width, height int) {
	chars := []rune{'~', '.', '-', '=', '#', '^', '*', '@'}
	ts := w.Field.TileSize()
	ox := int(float64(pos[0])/ts) - width/2
	oz := int(float64(pos[2])/ts) - (height-2)/2
	for py := 0; py < height-2; py++ {
		for px := 0; px < width; px++ {
			tx, tz := float64(ox+px), float64(oz+py)
			h := w.Field.NormalizedHeight(tx, tz)
			idx := min(int(h*float64(len(chars)-1)), len(chars)-1)
			fg := termbox.ColorWhite
			if w.Field.River(tx, tz) >= terrainmath.RiverGateThreshold {
				fg = termbox.ColorBlue
			}
			termbox.SetCell(px, py+2, chars[idx], fg, termbox.ColorBlack)
		}
	}
	termbox.SetCell(width/2, (height-2)/2+2, 'X', termbox.ColorRed|termbox.AttrBold, termbox.ColorBlack)
}
