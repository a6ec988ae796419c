package channel

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrNotConnected = errors.New("channel: not connected")
	ErrTimeout      = errors.New("channel: request timed out")
	ErrClosed       = errors.New("channel: client closed")
)

// ReplyError é um phx_reply com status diferente de "ok"
type ReplyError struct {
	Topic    string
	Event    string
	Status   string
	Response json.RawMessage
}

func (e *ReplyError) Error() string {
	if len(e.Response) == 0 {
		return fmt.Sprintf("channel: %s %s replied %s", e.Event, e.Topic, e.Status)
	}
	return fmt.Sprintf("channel: %s %s replied %s: %s", e.Event, e.Topic, e.Status, e.Response)
}
