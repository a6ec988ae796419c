package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/feed"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/projection"
	"github.com/radieske/live-odds-client/internal/live-odds/session"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
	"github.com/radieske/live-odds-client/internal/shared/config"
	"github.com/radieske/live-odds-client/internal/shared/kafka"
	"github.com/radieske/live-odds-client/internal/shared/logger"
	"github.com/radieske/live-odds-client/internal/shared/metrics"
	"github.com/radieske/live-odds-client/internal/shared/supervisor"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

// feed-replay reconstrói a visão de um esporte a partir do espelho Kafka e
// registra o resultado; útil para reproduzir incidentes offline.
func main() {
	cfg, err := config.LoadFor("feed-replay")
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)

	reader := kafka.NewReader(cfg.Brokers(), cfg.KafkaTopicFeed, cfg.KafkaGroupReplay)
	defer reader.Close()

	st := store.New(log)
	tracker := presence.NewTracker()
	disp := &session.Dispatcher{
		Log:      log,
		Store:    st,
		Presence: tracker,
		OnApplied: func(kind string) {
			m.MessagesApplied.WithLabelValues(kind).Inc()
		},
		OnDropped: func(kind, reason string) {
			m.MessagesDropped.WithLabelValues(kind, reason).Inc()
		},
		OnPresenceAnomaly: m.PresenceAnomalies.Inc,
		OnChanged: func(v uint64) {
			m.StoreVersion.Set(float64(v))
			m.StoreEvents.Set(float64(st.Snapshot().Len()))
		},
	}

	replayer := &feed.Replayer{
		Log:        log,
		Reader:     reader,
		Dispatcher: disp,
		Topic:      topics.Match(cfg.Sport),
		IdleStop:   10 * time.Second,
		OnConsumed: m.FeedConsumed.Inc,
		OnError:    func(stage string) { m.FeedErrors.WithLabelValues(stage).Inc() },
	}

	// métricas ficam no ar enquanto o replay roda
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	go func() {
		err := supervisor.HTTPServer{Name: "metrics", Server: metrics.NewServer(cfg.MetricsPort, nil, nil), Log: log}.Serve(srvCtx)
		if err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("replaying feed",
		zap.String("kafka_topic", cfg.KafkaTopicFeed),
		zap.String("channel_topic", replayer.Topic),
		zap.String("group", cfg.KafkaGroupReplay),
	)
	stats, err := replayer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("replay failed", zap.Error(err))
	}

	view := projection.NewEngine(projection.ParsePolicy(cfg.GroupingPolicy)).View(st.Snapshot(), cfg.Sport)
	groups := make([]string, 0, len(view.Groups))
	for _, g := range view.Groups {
		groups = append(groups, fmt.Sprintf("%s=%d", g.Competition, len(g.Events)))
	}
	log.Info("replay finished",
		zap.Int("records", stats.Records),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("dropped", stats.Dropped),
		zap.Uint64("version", view.Version),
		zap.Int("events", len(view.Events)),
		zap.Strings("competitions", groups),
		zap.Int("viewers", tracker.Count()),
	)
}
