package topics

const (
	// Canal de partidas: "match:<sport>"
	MatchPrefix = "match:"

	// Eventos recebidos no canal
	BatchUpdate   = "batch_update"
	EventRemoved  = "event_removed"
	ShardData     = "shard_data"
	PresenceState = "presence_state"
	PresenceDiff  = "presence_diff"

	// Comandos (push)
	GetEventCount = "get_event_count"

	// Kafka: espelho das mensagens recebidas
	LiveOddsFeed = "live_odds_feed"

	// Registro do espelho com o snapshot devolvido pelo join
	JoinSnapshot = "join_snapshot"

	// Redis Pub/Sub: avisos de mudança da visão
	ViewChanged = "live_odds_view_changed"
)

// Match retorna o tópico do canal para um esporte
func Match(sport string) string { return MatchPrefix + sport }

// SportOf extrai o esporte de um tópico "match:<sport>"
func SportOf(topic string) (string, bool) {
	if len(topic) <= len(MatchPrefix) || topic[:len(MatchPrefix)] != MatchPrefix {
		return "", false
	}
	return topic[len(MatchPrefix):], true
}
