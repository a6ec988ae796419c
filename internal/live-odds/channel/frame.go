package channel

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/radieske/live-odds-client/pkg/contracts/events"
)

// Eventos de controle do protocolo Phoenix
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"
	TopicPhoenix   = "phoenix"

	StatusOK    = "ok"
	StatusError = "error"
)

// Message é um frame v2: [join_ref, ref, topic, event, payload].
// Seq é a ordem de chegada no cliente, crescente entre conexões; zero quando não veio do cliente.
type Message struct {
	JoinRef    string
	Ref        string
	Topic      string
	Event      string
	Payload    json.RawMessage
	ReceivedAt time.Time
	Seq        uint64
}

// replyPayload é o payload de um phx_reply
type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// EncodeFrame serializa a mensagem no formato de array; refs vazias viram null
func EncodeFrame(m Message) ([]byte, error) {
	payload := m.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(m.JoinRef), nullable(m.Ref), m.Topic, m.Event, payload})
}

// DecodeFrame faz o caminho inverso de EncodeFrame
func DecodeFrame(b []byte) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) != 5 {
		return Message{}, fmt.Errorf("decode frame: expected 5 elements, got %d", len(parts))
	}
	var joinRef, ref events.FlexString
	var m Message
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return Message{}, fmt.Errorf("decode frame join_ref: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return Message{}, fmt.Errorf("decode frame ref: %w", err)
	}
	if err := json.Unmarshal(parts[2], &m.Topic); err != nil {
		return Message{}, fmt.Errorf("decode frame topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &m.Event); err != nil {
		return Message{}, fmt.Errorf("decode frame event: %w", err)
	}
	m.JoinRef, m.Ref = joinRef.String(), ref.String()
	m.Payload = parts[4]
	return m, nil
}

// Reply monta a resposta a um frame recebido (usado pelo simulador)
func Reply(to Message, status string, response any) (Message, error) {
	resp, err := json.Marshal(response)
	if err != nil {
		return Message{}, err
	}
	payload, err := json.Marshal(replyPayload{Status: status, Response: resp})
	if err != nil {
		return Message{}, err
	}
	return Message{JoinRef: to.JoinRef, Ref: to.Ref, Topic: to.Topic, Event: EventReply, Payload: payload}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
