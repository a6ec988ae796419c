package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors reúne as métricas do cliente de odds ao vivo
type Collectors struct {
	MessagesApplied   *prometheus.CounterVec // por evento do canal
	MessagesDropped   *prometheus.CounterVec // por evento e motivo
	PresenceAnomalies prometheus.Counter
	JoinErrors        prometheus.Counter
	Rejoins           prometheus.Counter // inscrições refeitas após reconexão
	Recomputations    prometheus.Counter
	StoreEvents       prometheus.Gauge
	StoreVersion      prometheus.Gauge
	Viewers           prometheus.Gauge
	FeedErrors        *prometheus.CounterVec // por estágio
	NoticesPublished  prometheus.Counter
	NoticesThrottled  prometheus.Counter
	FeedConsumed      prometheus.Counter     // registros lidos pelo replay

	SimulatorConnections prometheus.Gauge
	SimulatorFramesSent  *prometheus.CounterVec // por evento
}

// NewCollectors cria e registra as métricas em reg
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		MessagesApplied:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "live_odds_messages_applied_total", Help: "mensagens do canal aplicadas"}, []string{"event"}),
		MessagesDropped:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "live_odds_messages_dropped_total", Help: "mensagens descartadas por motivo"}, []string{"event", "reason"}),
		PresenceAnomalies: prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_presence_anomalies_total", Help: "diffs de presença que levariam a contagem abaixo de zero"}),
		JoinErrors:        prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_join_errors_total", Help: "falhas de join no canal"}),
		Rejoins:           prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_rejoins_total", Help: "inscrições refeitas depois de reconectar"}),
		Recomputations:    prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_projection_recomputations_total", Help: "recálculos da projeção"}),
		StoreEvents:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "live_odds_store_events", Help: "eventos na store"}),
		StoreVersion:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "live_odds_store_version", Help: "versão atual da store"}),
		Viewers:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "live_odds_viewers", Help: "espectadores no tópico atual"}),
		FeedErrors:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "live_odds_feed_errors_total", Help: "erros do espelho kafka por estágio"}, []string{"stage"}),
		NoticesPublished:  prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_notices_published_total", Help: "avisos publicados no redis"}),
		NoticesThrottled:  prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_notices_throttled_total", Help: "avisos descartados pelo limitador"}),
		FeedConsumed:      prometheus.NewCounter(prometheus.CounterOpts{Name: "live_odds_feed_consumed_total", Help: "registros do espelho lidos no replay"}),

		SimulatorConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "channel_simulator_connections", Help: "clientes conectados ao simulador"}),
		SimulatorFramesSent:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "channel_simulator_frames_sent_total", Help: "frames enviados pelo simulador"}, []string{"event"}),
	}
	reg.MustRegister(
		c.MessagesApplied, c.MessagesDropped, c.PresenceAnomalies, c.JoinErrors, c.Rejoins, c.Recomputations,
		c.StoreEvents, c.StoreVersion, c.Viewers, c.FeedErrors, c.NoticesPublished, c.NoticesThrottled,
		c.FeedConsumed, c.SimulatorConnections, c.SimulatorFramesSent,
	)
	return c
}
