package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/reflection"
	yaml "gopkg.in/yaml.v3"

	"github.com/annelo/terrain-streamer/internal/config"
	"github.com/annelo/terrain-streamer/internal/decoration"
	"github.com/annelo/terrain-streamer/internal/gameloop"
	"github.com/annelo/terrain-streamer/internal/registry"
	"github.com/annelo/terrain-streamer/internal/service"
	"github.com/annelo/terrain-streamer/internal/storage"
	"github.com/annelo/terrain-streamer/internal/world"
	"github.com/annelo/terrain-streamer/plugins/landmarks"
)

var (
	port       = flag.Int("port", 50051, "Порт для gRPC сервера")
	worldPath  = flag.String("world", "/tmp/world", "Путь для хранения описания мира")
	worldName  = flag.String("name", "default", "Название мира")
	seed       = flag.Int64("seed", 0, "Сид для генерации мира (0 = случайный)")
	configPath = flag.String("config", "", "YAML-файл с настройками стримера и рецептом")
	extDir     = flag.String("extensions", "./plugins", "Директория с конфигурациями расширений")
	noStorage  = flag.Bool("no-storage", false, "Запуск без хранилища данных")
	orbit      = flag.Float64("orbit", 96, "Радиус орбиты наблюдателя (0 = неподвижен)")
	debug      = flag.Bool("debug", false, "Подробный лог")
)

func newLogger() *zap.SugaredLogger {
	var (
		l   *zap.Logger
		err error
	)
	if *debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		log.Printf("Не удалось создать zap-логгер: %v", err)
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// openStorage возвращает файловое хранилище или хранилище в памяти, если диск недоступен
func openStorage() storage.WorldStorage {
	if *noStorage {
		log.Printf("Запуск в режиме без хранилища")
		return storage.NewMemoryStorage()
	}
	if err := os.MkdirAll(*worldPath, 0755); err != nil {
		log.Printf("Невозможно создать директорию для хранилища %s: %v", *worldPath, err)
		log.Printf("Продолжаем без хранилища...")
		return storage.NewMemoryStorage()
	}

	// Проверяем права на запись
	testFile := filepath.Join(*worldPath, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		log.Printf("Нет прав на запись в директорию хранилища %s: %v", *worldPath, err)
		log.Printf("Продолжаем без хранилища...")
		return storage.NewMemoryStorage()
	}
	os.Remove(testFile)

	fs, err := storage.NewFileStorage(*worldPath)
	if err != nil {
		log.Printf("Ошибка при инициализации хранилища: %v", err)
		return storage.NewMemoryStorage()
	}
	log.Printf("Хранилище мира инициализировано в %s", fs.Path())
	return fs
}

func main() {
	// Парсим флаги командной строки
	flag.Parse()

	// Если сид не указан, генерируем случайный
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	file := config.Default(*seed)
	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Ошибка конфигурации: %v", err)
		}
		file = f
	}

	logger := newLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := openStorage()
	info, created, err := storage.LoadOrCreate(ctx, store, *worldName, *seed, time.Now().Unix())
	if err != nil {
		log.Fatalf("Не удалось загрузить мир: %v", err)
	}
	if created && *configPath != "" {
		// рецепт из файла фиксируется при создании мира
		info.Recipe = file.Recipe.Normalize()
		info.Seed = info.Recipe.Seed
		if err := store.SaveWorld(ctx, info); err != nil {
			log.Printf("Ошибка сохранения мира: %v", err)
		}
	}
	log.Printf("Мир %q (создан: %v), сид %d", info.Name, created, info.Seed)

	app := &server{store: store, cancel: cancel}

	// 1) Реестр и встроенные команды
	reg := registry.NewDefaultRegistry()
	mgr := registry.NewManager(*extDir, landmarks.New())
	registerCommands(reg, mgr, app)
	// 2) Обозначаем границу core-регистраций и ставим расширения
	reg.MarkCore()
	if err := mgr.Install(reg); err != nil {
		log.Printf("Ошибка при установке расширений: %v", err)
	}

	var path gameloop.Path
	if *orbit > 0 {
		path = gameloop.CirclePath{Radius: *orbit, Speed: 0.05}
	}
	w, err := world.NewWorld(info, file.Streamer, world.Options{
		Registry:  reg,
		Storage:   store,
		Logger:    logger.Named("world"),
		Path:      path,
		EyeHeight: 1.7,
	})
	if err != nil {
		log.Fatalf("Не удалось создать мир: %v", err)
	}
	app.world = w

	svc := service.NewTerrainService(file.Streamer, info.Recipe)
	svc.SetLogger(logger.Named("terrain"))
	svc.SetPlacers(append(decoration.DefaultPlacers(info.Recipe.Decoration), reg.Placers()...))
	app.grpc, app.health = service.NewServer(svc, logger.Named("grpc"))
	// Включаем reflection для инструментов вроде grpcurl
	reflection.Register(app.grpc)

	// Создаем TCP-слушатель
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatalf("Не удалось создать слушателя: %v", err)
	}

	w.Start(ctx)
	go logEvents(ctx, w)

	// Обрабатываем сигналы для корректного завершения
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Println("Получен сигнал завершения, останавливаем сервер...")
		app.stop()
	}()

	go repl(reg)

	log.Printf("Сервер рельефа запущен на порту %d", *port)
	if err := app.grpc.Serve(lis); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

// server держит то, что нужно остановить при завершении
type server struct {
	world  *world.World
	grpc   *grpc.Server
	health *health.Server
	store  storage.WorldStorage
	cancel context.CancelFunc
	once   sync.Once
}

func (s *server) stop() {
	s.once.Do(func() {
		s.cancel() // Отменяем контекст для цикла мира
		if s.world != nil {
			if err := s.world.Stop(context.Background()); err != nil {
				log.Printf("Ошибка сохранения мира: %v", err)
			}
		}
		if s.grpc != nil {
			service.Shutdown(s.grpc, s.health, 5*time.Second)
		}
		s.store.Close()
	})
}

// logEvents пишет в лог события цикла
func logEvents(ctx context.Context, w *world.World) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-w.Events():
			switch evt.Type {
			case gameloop.EventObserverBlocked:
				log.Printf("[Observer] blocked near %s at (%.1f, %.1f)", evt.Key, evt.Position.X(), evt.Position.Z())
			case gameloop.EventStats:
				log.Printf("[Stats] tick=%d loaded=%d decorated=%d beacons=%d", evt.Tick, evt.Stats.Loaded, evt.Stats.Decorated, w.BeaconCount())
			}
		}
	}
}

// registerCommands добавляет встроенные команды администратора
func registerCommands(reg registry.Registry, mgr *registry.Manager, app *server) {
	reg.RegisterCommand("stop", "Stop server", func(args []string) (string, error) {
		go app.stop()
		return "Server stopping\n", nil
	})
	reg.RegisterCommand("help", "List commands", func(args []string) (string, error) {
		var sb strings.Builder
		for _, cmd := range reg.Commands() {
			sb.WriteString(fmt.Sprintf("%s - %s\n", cmd.Name, cmd.Description))
		}
		return sb.String(), nil
	})
	reg.RegisterCommand("reload", "Reload extensions and their configs", func(args []string) (string, error) {
		if err := mgr.Reload(reg); err != nil {
			return "", err
		}
		// плейсеры и системы мира зафиксированы при старте
		return "Extensions reloaded: commands and hooks updated, placers and systems apply after restart\n", nil
	})
	reg.RegisterCommand("extensions", "List installed extensions", func(args []string) (string, error) {
		var sb strings.Builder
		for _, meta := range reg.Metas() {
			sb.WriteString(fmt.Sprintf("%s v%s by %s: %s\n", meta.Name, meta.Version, meta.Author, meta.Description))
		}
		return sb.String(), nil
	})
	reg.RegisterCommand("config", "Show extension config: config <name>", func(args []string) (string, error) {
		if len(args) < 1 {
			return "Usage: config <name>\n", nil
		}
		cfg := reg.Config(args[0])
		if cfg == nil {
			return fmt.Sprintf("No config for extension %s\n", args[0]), nil
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	reg.RegisterCommand("recipe", "Show world recipe", func(args []string) (string, error) {
		data, err := yaml.Marshal(app.world.Info.Recipe)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	reg.RegisterCommand("stats", "Show streamer stats", func(args []string) (string, error) {
		st := app.world.Streamer.Stats()
		pos := app.world.Observer.Position()
		return fmt.Sprintf("observer=(%.1f, %.1f, %.1f) center=%s desired=%d loaded=%d pending=%d queued=%d decorated=%d\n"+
			"built=%d attached=%d evicted=%d discarded=%d attach_failures=%d objects=%d beacons=%d\n",
			pos.X(), pos.Y(), pos.Z(), st.Center, st.Desired, st.Loaded, st.Pending, st.Queued, st.Decorated,
			st.Built, st.Attached, st.Evicted, st.Discarded, st.AttachFailures, st.ObjectsAttached, app.world.BeaconCount()), nil
	})
	reg.RegisterCommand("height", "Ground height: height <x> <z>", func(args []string) (string, error) {
		if len(args) < 2 {
			return "Usage: height <x> <z>\n", nil
		}
		x, errX := strconv.ParseFloat(args[0], 64)
		z, errZ := strconv.ParseFloat(args[1], 64)
		if err := errors.Join(errX, errZ); err != nil {
			return "", err
		}
		return fmt.Sprintf("%.3f\n", app.world.Field.GroundHeight(x, z)), nil
	})
	reg.RegisterCommand("save", "Save world info", func(args []string) (string, error) {
		if err := app.world.Save(context.Background()); err != nil {
			return "", err
		}
		return "World saved\n", nil
	})
}

// repl - CLI администратора
func repl(reg registry.Registry) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd, ok := reg.Command(parts[0])
		if !ok {
			fmt.Printf("Неизвестная команда: %s\n", parts[0])
			continue
		}
		out, err := cmd.Handler(parts[1:])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Print(out)
	}
}
