package main

import (
	"fmt"
	"image/color"
	"log"
	"net/http"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/command"
	"simkernel/internal/core/ecs/scheduler"
	"simkernel/internal/core/ecs/snapshot"
	"simkernel/internal/core/kernel"
)

// position and velocity are the demo world's only two component
// types — just enough to exercise a Sync module end to end.
type position struct{ X, Y float32 }
type velocity struct{ X, Y float32 }

// game wraps a Kernel behind ebiten's Game interface, the same shape
// the teacher's core.Game uses: Update advances the simulation,
// Draw reports it, Layout fixes the window size.
type game struct {
	k   *kernel.Kernel
	log *zap.Logger
}

func (g *game) Update() error {
	return g.k.Tick(1.0 / 60.0)
}

func (g *game) Draw(screen *ebiten.Image) {
	gt := g.k.GlobalTime()
	screen.Fill(color.RGBA{20, 20, 40, 255})
	ebitenutil.DebugPrint(screen, fmt.Sprintf("frame %d  t=%.2fs", gt.FrameNumber, gt.TotalSeconds))
}

func (g *game) Layout(_, _ int) (int, int) {
	return 1280, 720
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Printf("automaxprocs: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	k := kernel.New(kernel.Config{
		FrameRate:              60,
		WorkerPoolSize:         4,
		DefaultMaxRuntime:      16 * time.Millisecond,
		ResourceSampleInterval: 5 * time.Second,
		Logger:                 logger,
	})
	defer k.Close()

	posID, err := k.RegisterPlainData("position", 8)
	if err != nil {
		logger.Fatal("register position", zap.Error(err))
	}
	velID, err := k.RegisterPlainData("velocity", 8)
	if err != nil {
		logger.Fatal("register velocity", zap.Error(err))
	}

	if err := k.ValidateMemoryBudget(); err != nil {
		logger.Warn("memory budget", zap.Error(err))
	}

	e, err := k.CreateEntity()
	if err != nil {
		logger.Fatal("create entity", zap.Error(err))
	}
	if err := k.AddComponent(e, posID, &position{X: 0, Y: 0}); err != nil {
		logger.Fatal("seed position", zap.Error(err))
	}
	if err := k.AddComponent(e, velID, &velocity{X: 1, Y: 0.5}); err != nil {
		logger.Fatal("seed velocity", zap.Error(err))
	}

	if err := k.RegisterModule(movementModule(e, posID, velID)); err != nil {
		logger.Fatal("register movement module", zap.Error(err))
	}

	go serveMetrics(k, logger)

	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle("simkernel demo")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(&game{k: k, log: logger}); err != nil {
		logger.Fatal("run game", zap.Error(err))
	}
}

// movementModule is a minimal Sync/Direct module: Direct's live view lets
// it mutate the entity's position in place (plain-data components are
// stored behind a pointer precisely so ReadRW can do this) rather than
// going through the command buffer, legal only because Sync modules run
// on the main thread with no concurrent writer to isolate from.
func movementModule(entity ecs.EntityID, posID, velID ecs.ComponentTypeID) scheduler.ModuleSpec {
	return scheduler.ModuleSpec{
		Name:   "movement",
		Policy: scheduler.Policy{Mode: ecs.Sync, DataStrategy: ecs.DirectStrategy},
		Systems: []scheduler.System{
			{
				Name:  "integrate",
				Phase: ecs.Simulation,
				Tick:  integratePosition(entity, posID, velID),
			},
		},
	}
}

func integratePosition(entity ecs.EntityID, posID, velID ecs.ComponentTypeID) func(ecs.View, *command.Buffer, float32) error {
	return func(view ecs.View, buf *command.Buffer, dt float32) error {
		v := view.(*snapshot.View)

		velRaw, err := v.Store.GetRO(entity, velID)
		if err != nil {
			return nil
		}
		vel := velRaw.(*velocity)

		posRaw, err := v.Store.GetRW(entity, posID, view.Version())
		if err != nil {
			return nil
		}
		pos := posRaw.(*position)
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt
		return nil
	}
}

func serveMetrics(k *kernel.Kernel, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(k.Metrics().Registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe("127.0.0.1:2112", mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
