package events

import (
	"time"

	"github.com/goccy/go-json"
)

// Payloads recebidos no tópico "match:<sport>".

type BatchUpdate struct {
	Updates []EventUpdate `json:"updates"`
}

type EventUpdate struct {
	EventID FlexString `json:"event_id"`
	Event   *LiveEvent `json:"event"`
}

type EventRemoved struct {
	EventID FlexString `json:"event_id"`
}

// ShardData é o conjunto completo de eventos de um shard.
// shard_id é opcional; sem ele o tópico da mensagem identifica o shard.
type ShardData struct {
	ShardID FlexString  `json:"shard_id,omitempty"`
	Events  []LiveEvent `json:"events"`
}

// PresenceState: viewerRef -> metadados opacos. A quantidade de chaves é o número de espectadores.
type PresenceState map[string]json.RawMessage

type PresenceDiff struct {
	Joins  map[string]json.RawMessage `json:"joins"`
	Leaves map[string]json.RawMessage `json:"leaves"`
}

// EventCount é a resposta de get_event_count (e parte da resposta do join)
type EventCount struct {
	TotalPages  *int `json:"total_pages,omitempty"`
	TotalEvents *int `json:"total_events,omitempty"`
}

// JoinReply é a resposta "ok" do join no canal
type JoinReply struct {
	Events []LiveEvent `json:"events"`
	EventCount
}

type JoinParams struct {
	Page int `json:"page,omitempty"`
}

type EventCountParams struct {
	Sport string `json:"sport"`
	Page  int    `json:"page,omitempty"`
}

// FeedRecord é a cópia de uma mensagem do canal publicada no tópico Kafka de espelho
type FeedRecord struct {
	Topic      string          `json:"topic"`
	Event      string          `json:"event"`
	JoinRef    string          `json:"join_ref,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ViewChanged é o aviso publicado no Redis Pub/Sub a cada mudança da visão
type ViewChanged struct {
	Sport   string    `json:"sport"`
	Version uint64    `json:"version"`
	Events  int       `json:"events"`
	Viewers int       `json:"viewers"`
	At      time.Time `json:"at"`
}
