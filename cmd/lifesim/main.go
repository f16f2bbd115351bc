// Command lifesim runs the town simulation server: it loads the world
// bundle, restores persisted state, and serves the observation API while
// the engine ticks.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/lifesim/internal/api"
	"github.com/talgya/lifesim/internal/behavior"
	"github.com/talgya/lifesim/internal/config"
	"github.com/talgya/lifesim/internal/convo"
	"github.com/talgya/lifesim/internal/llm"
	"github.com/talgya/lifesim/internal/schedule"
	"github.com/talgya/lifesim/internal/sim"
	"github.com/talgya/lifesim/internal/store"
	"github.com/talgya/lifesim/internal/world"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		bundlePath = flag.String("bundle", envOr("LIFESIM_BUNDLE", "world.json"), "world bundle JSON")
		configPath = flag.String("config", envOr("LIFESIM_CONFIG", ""), "world config YAML (optional)")
		dbPath     = flag.String("db", envOr("LIFESIM_DB", "lifesim.db"), "SQLite database path, empty for in-memory")
		addr       = flag.String("addr", envOr("LIFESIM_ADDR", ":8080"), "HTTP listen address")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	bundle, err := world.LoadBundle(*bundlePath)
	if err != nil {
		return err
	}
	var chars []*world.Character
	defaults := make(map[string][]world.ScheduleEntry)
	for _, seed := range bundle.Characters {
		chars = append(chars, seed.Character)
		if len(seed.DefaultSchedule) > 0 {
			defaults[seed.Character.ID] = seed.DefaultSchedule
		}
	}
	ws := world.NewWorldState(bundle.MapsByID(), chars, bundle.NPCs)
	if bundle.StartMapID != "" {
		ws.SetCurrentMapID(bundle.StartMapID)
	}

	var st store.Store
	if *dbPath == "" {
		st = store.NewMemory()
	} else {
		sqlite, err := store.OpenSQLite(*dbPath)
		if err != nil {
			return err
		}
		st = sqlite
	}
	defer st.Close()

	client := llm.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
	if !client.Available() {
		slog.Warn("no OPENAI_API_KEY set, running with rule-based behavior only")
	}

	schedules := schedule.NewManager(st, defaults)
	convos := convo.NewManager()
	convoExec := convo.NewExecutor(convos, client, cfg.TurnInterval(), cfg.LLMTimeout())
	postProc := convo.NewPostProcessor(client, st)
	decider := behavior.NewDecider(cfg, client)

	engine := sim.NewEngine(sim.Deps{
		Config:    cfg,
		World:     ws,
		Store:     st,
		Decider:   decider,
		Schedules: schedules,
		Convos:    convos,
		ConvoExec: convoExec,
		PostProc:  postProc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.EnsureInitialized(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: api.NewServer(engine, time.Second).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := engine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", *addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	slog.Info("simulation running",
		"characters", len(chars), "npcs", len(bundle.NPCs), "maps", len(bundle.Maps))
	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
