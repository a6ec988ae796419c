package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/feed"
	httpapi "github.com/radieske/live-odds-client/internal/live-odds/http"
	"github.com/radieske/live-odds-client/internal/live-odds/marketcache"
	"github.com/radieske/live-odds-client/internal/live-odds/marketnames"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/projection"
	"github.com/radieske/live-odds-client/internal/live-odds/session"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
	"github.com/radieske/live-odds-client/internal/live-odds/ws"
	"github.com/radieske/live-odds-client/internal/shared/cache"
	"github.com/radieske/live-odds-client/internal/shared/config"
	"github.com/radieske/live-odds-client/internal/shared/db"
	"github.com/radieske/live-odds-client/internal/shared/kafka"
	"github.com/radieske/live-odds-client/internal/shared/logger"
	"github.com/radieske/live-odds-client/internal/shared/metrics"
	"github.com/radieske/live-odds-client/internal/shared/supervisor"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

func main() {
	// carrega config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("channel_url", cfg.ChannelURL),
		zap.String("sport", cfg.Sport),
	)

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)

	// estado canônico e projeção
	st := store.New(log)
	tracker := presence.NewTracker()
	engine := projection.NewEngine(projection.ParsePolicy(cfg.GroupingPolicy))
	engine.OnRecompute(m.Recomputations.Inc)

	// nomes de mercado: embutidos + overrides opcionais do Postgres
	names, err := marketnames.New()
	if err != nil {
		log.Fatal("market names", zap.Error(err))
	}
	if cfg.MarketNamesFromDB {
		pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		n, err := names.LoadOverrides(ctx, &marketnames.PostgresRepo{DB: pg})
		if err != nil {
			log.Warn("market name overrides not loaded, using defaults", zap.Error(err))
		} else {
			log.Info("market name overrides loaded", zap.Int("count", n))
		}
	}

	// avisos de mudança: Redis Pub/Sub quando habilitado, senão direto no hub local
	hub := ws.NewHub(func(*http.Request) bool { return true }, log)
	var pub ws.Publisher = ws.LocalPublisher{Hub: hub}
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		log.Info("redis connected")
		pub = ws.NewRedisBroadcaster(rdb)
	}
	notifier := &ws.Notifier{
		Pub:         pub,
		Channel:     cfg.RedisPubSubChannel,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.NotifyRate), cfg.NotifyBurst),
		Log:         log,
		OnPublished: m.NoticesPublished.Inc,
		OnCoalesced: m.NoticesThrottled.Inc,
	}

	client := channel.NewClient(channel.Config{
		URL:               cfg.ChannelURL,
		JoinTimeout:       cfg.JoinTimeout,
		PushTimeout:       cfg.PushTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectWait:     cfg.ReconnectWait,
	}, log)

	var sess *session.Session
	notify := func() {
		snap := st.Snapshot()
		m.StoreVersion.Set(float64(snap.Version()))
		m.StoreEvents.Set(float64(snap.Len()))
		m.Viewers.Set(float64(tracker.Count()))
		notifier.Notify(events.ViewChanged{
			Sport:   sess.Status().Sport,
			Version: snap.Version(),
			Events:  snap.Len(),
			Viewers: tracker.Count(),
			At:      time.Now().UTC(),
		})
	}
	disp := &session.Dispatcher{
		Log:      log,
		Store:    st,
		Presence: tracker,
		OnApplied: func(kind string) {
			m.MessagesApplied.WithLabelValues(kind).Inc()
			if kind == topics.PresenceState || kind == topics.PresenceDiff {
				notify()
			}
		},
		OnDropped: func(kind, reason string) {
			m.MessagesDropped.WithLabelValues(kind, reason).Inc()
		},
		OnPresenceAnomaly: m.PresenceAnomalies.Inc,
		OnChanged:         func(uint64) { notify() },
	}
	sess = session.New(client, disp, session.Options{CountRefreshInterval: cfg.CountRefreshInterval}, log)
	sess.OnJoinError = m.JoinErrors.Inc
	client.OnReconnect = func() { go rejoin(ctx, log, sess, m, cfg.JoinTimeout) }

	sup := supervisor.New(cfg.ServiceName, log)

	// espelho Kafka das mensagens recebidas
	if cfg.FeedTapEnabled {
		if cfg.Env == "local" || cfg.Env == "dev" {
			if created, err := kafka.EnsureTopic(ctx, cfg.Brokers(), cfg.KafkaTopicFeed); err != nil {
				log.Warn("failed to create kafka topic", zap.String("topic", cfg.KafkaTopicFeed), zap.Error(err))
			} else if created {
				log.Info("kafka topic created", zap.String("topic", cfg.KafkaTopicFeed))
			}
		}
		writer := kafka.NewWriter(cfg.Brokers(), cfg.KafkaTopicFeed)
		defer writer.Close()
		tap := feed.NewTap(writer, 4096, log)
		tap.OnError = func(stage string) { m.FeedErrors.WithLabelValues(stage).Inc() }
		client.OnFrame = tap.Mirror
		client.OnJoinReply = tap.MirrorJoin
		sup.Add(supervisor.Func{Name: "feed-tap", Run: tap.Run})
		log.Info("kafka feed tap ready", zap.String("topic", cfg.KafkaTopicFeed))
	}

	api := &httpapi.API{
		Log:      log,
		Store:    st,
		Engine:   engine,
		Presence: tracker,
		Names:    names,
		Session:  sess,
		WS:       http.HandlerFunc(hub.HandleWS),
	}
	if rdb != nil {
		api.Cache = marketcache.New(rdb, 30*time.Second)
		sup.Add(supervisor.Func{Name: "redis-relay", Run: (&ws.Relay{
			Redis:   rdb,
			Channel: cfg.RedisPubSubChannel,
			Hub:     hub,
			Log:     log,
		}).Run})
	}

	sup.Add(supervisor.Func{Name: "channel-client", Run: client.Start})
	sup.Add(supervisor.Func{Name: "session", Run: sess.Run})
	sup.Add(supervisor.Func{Name: "notifier", Run: notifier.Run})
	sup.Add(supervisor.HTTPServer{
		Name:   "api",
		Server: &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router(), ReadHeaderTimeout: 5 * time.Second},
		Log:    log,
	})
	sup.Add(supervisor.HTTPServer{
		Name: "metrics",
		Server: metrics.NewServer(cfg.MetricsPort, nil, func(context.Context) error {
			if !client.Connected() {
				return errors.New("channel not connected")
			}
			return nil
		}),
		Log: log,
	})

	go subscribeInitial(ctx, log, client, sess, cfg)

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor stopped", zap.Error(err))
	}
	log.Info("service stopped")
}

// rejoin refaz a última inscrição uma vez depois que o canal reconecta.
// Se falhar a sessão fica degradada até a próxima reconexão ou uma troca via API.
func rejoin(ctx context.Context, log *zap.Logger, sess *session.Session, m *metrics.Collectors, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()
	err := sess.Rejoin(ctx)
	if errors.Is(err, session.ErrNotSubscribed) {
		return
	}
	if err != nil {
		log.Warn("rejoin after reconnect failed", zap.Error(err))
		return
	}
	m.Rejoins.Inc()
}

// subscribeInitial entra no esporte configurado assim que o canal conecta.
// Depois da primeira inscrição trocas só acontecem via API.
func subscribeInitial(ctx context.Context, log *zap.Logger, client *channel.Client, sess *session.Session, cfg config.Config) {
	t := time.NewTicker(cfg.ReconnectWait)
	defer t.Stop()
	for {
		if client.Connected() {
			err := sess.Subscribe(ctx, cfg.Sport, cfg.Page)
			if err == nil {
				return
			}
			log.Warn("initial subscription failed", zap.String("sport", cfg.Sport), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
