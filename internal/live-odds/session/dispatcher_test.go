package session

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/model"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

type counters struct {
	applied   []string
	dropped   []string
	anomalies int
	versions  []uint64
}

func newDispatcher() (*Dispatcher, *counters) {
	c := &counters{}
	d := &Dispatcher{
		Store:             store.New(nil),
		Presence:          presence.NewTracker(),
		OnApplied:         func(kind string) { c.applied = append(c.applied, kind) },
		OnDropped:         func(kind, reason string) { c.dropped = append(c.dropped, kind+"/"+reason) },
		OnPresenceAnomaly: func() { c.anomalies++ },
		OnChanged:         func(v uint64) { c.versions = append(c.versions, v) },
	}
	return d, c
}

func msg(topic, event, payload string) channel.Message {
	return channel.Message{Topic: topic, Event: event, Payload: json.RawMessage(payload)}
}

func TestDispatch_BatchUpdate(t *testing.T) {
	d, c := newDispatcher()

	err := d.Dispatch(msg("match:soccer", topics.BatchUpdate,
		`{"updates":[{"event_id":1,"event":{"id":1,"sport":"soccer","cmp_name":"A"}},{"event_id":"2","event":{"sport":"soccer"}}]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, d.Store.Snapshot().IDs())
	ev, _ := d.Store.Snapshot().Get("2")
	assert.Equal(t, "2", ev.ID)
	assert.Equal(t, []string{topics.BatchUpdate}, c.applied)
	assert.Equal(t, []uint64{1}, c.versions)
}

func TestDispatch_BatchUpdatePartiallyMalformed(t *testing.T) {
	d, c := newDispatcher()

	err := d.Dispatch(msg("match:soccer", topics.BatchUpdate,
		`{"updates":[{"event_id":"1","event":{"id":"1"}},{"event_id":"","event":{"sport":"soccer"}},{"event_id":"3"}]}`))

	var mu *model.MalformedUpdateError
	require.True(t, errors.As(err, &mu))
	assert.ErrorIs(t, err, model.ErrMissingIdentity)
	assert.Equal(t, []string{"1"}, d.Store.Snapshot().IDs())
	assert.Equal(t, []string{"batch_update/missing_identity"}, c.dropped)
}

func TestDispatch_DecodeError(t *testing.T) {
	d, c := newDispatcher()

	err := d.Dispatch(msg("match:soccer", topics.BatchUpdate, `{"updates": 7}`))

	var mu *model.MalformedUpdateError
	require.True(t, errors.As(err, &mu))
	assert.Equal(t, []string{"batch_update/decode"}, c.dropped)
	assert.Equal(t, 0, d.Store.Snapshot().Len())
}

func TestDispatch_EventRemoved(t *testing.T) {
	d, c := newDispatcher()
	d.Store.Initialize([]model.Event{{ID: "1"}, {ID: "2"}})

	require.NoError(t, d.Dispatch(msg("match:soccer", topics.EventRemoved, `{"event_id":"1"}`)))
	require.NoError(t, d.Dispatch(msg("match:soccer", topics.EventRemoved, `{"event_id":"404"}`)))
	err := d.Dispatch(msg("match:soccer", topics.EventRemoved, `{}`))

	assert.ErrorIs(t, err, model.ErrMissingIdentity)
	assert.Equal(t, []string{"2"}, d.Store.Snapshot().IDs())
	assert.Len(t, c.versions, 1)
}

func TestDispatch_ShardDataUsesShardIDOrTopic(t *testing.T) {
	d, _ := newDispatcher()

	require.NoError(t, d.Dispatch(msg("match:soccer", topics.ShardData, `{"shard_id":"s1","events":[{"id":"1"},{"id":"2"}]}`)))
	require.NoError(t, d.Dispatch(msg("match:soccer", topics.ShardData, `{"events":[{"id":"3"}]}`)))

	owner, _ := d.Store.ShardOf("1")
	assert.Equal(t, "s1", owner)
	owner, _ = d.Store.ShardOf("3")
	assert.Equal(t, "match:soccer", owner)

	require.NoError(t, d.Dispatch(msg("match:soccer", topics.ShardData, `{"shard_id":"s1","events":[{"id":"2"}]}`)))
	assert.Equal(t, []string{"2", "3"}, d.Store.Snapshot().IDs())
}

func TestDispatch_Presence(t *testing.T) {
	d, c := newDispatcher()

	require.NoError(t, d.Dispatch(msg("match:soccer", topics.PresenceState, `{"a":{"metas":[]},"b":{},"c":{}}`)))
	require.NoError(t, d.Dispatch(msg("match:soccer", topics.PresenceDiff, `{"joins":{"d":{}},"leaves":{"a":{}}}`)))
	assert.Equal(t, 3, d.Presence.Count())

	require.NoError(t, d.Dispatch(msg("match:soccer", topics.PresenceDiff, `{"joins":{},"leaves":{"a":{},"b":{},"c":{},"d":{}}}`)))
	assert.Equal(t, 0, d.Presence.Count())
	assert.Equal(t, 1, c.anomalies)
}

func TestDispatch_UnknownEventIgnored(t *testing.T) {
	d, c := newDispatcher()

	require.NoError(t, d.Dispatch(msg("match:soccer", "something_else", `{}`)))
	assert.Empty(t, c.applied)
	assert.Empty(t, c.dropped)
}
