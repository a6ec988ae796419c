package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	simulator "github.com/radieske/live-odds-client/internal/channel-simulator"
	"github.com/radieske/live-odds-client/internal/shared/config"
	"github.com/radieske/live-odds-client/internal/shared/logger"
	"github.com/radieske/live-odds-client/internal/shared/metrics"
	"github.com/radieske/live-odds-client/internal/shared/supervisor"
)

func main() {
	cfg, err := config.LoadFor("channel-simulator")
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)

	sim := simulator.New(simulator.Config{
		Events:   cfg.SimulatorEvents,
		Shards:   cfg.SimulatorShards,
		PageSize: cfg.SimulatorPageSize,
		Tick:     cfg.SimulatorTick,
	}, log)
	sim.OnConnections = func(n int) { m.SimulatorConnections.Set(float64(n)) }
	sim.OnSent = func(event string) { m.SimulatorFramesSent.WithLabelValues(event).Inc() }

	// mesmo caminho do endpoint Phoenix padrão
	r := chi.NewRouter()
	r.Get("/socket/websocket", sim.HandleWS)
	r.Post("/admin/disconnect", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"disconnected":%d}`, sim.DisconnectAll())
	})

	sup := supervisor.New(cfg.ServiceName, log)
	sup.Add(supervisor.Func{Name: "simulator-ticker", Run: sim.Run})
	sup.Add(supervisor.HTTPServer{
		Name:   "channel",
		Server: &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r, ReadHeaderTimeout: 5 * time.Second},
		Log:    log,
	})
	sup.Add(supervisor.HTTPServer{Name: "metrics", Server: metrics.NewServer(cfg.MetricsPort, nil, nil), Log: log})

	log.Info("channel simulator running",
		zap.String("addr", ":"+cfg.HTTPPort),
		zap.String("path", "/socket/websocket"),
		zap.Int("events_per_sport", cfg.SimulatorEvents),
	)
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor stopped", zap.Error(err))
	}
}
