package simulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-client/internal/live-odds/channel"
	"github.com/radieske/live-odds-client/internal/live-odds/presence"
	"github.com/radieske/live-odds-client/internal/live-odds/session"
	"github.com/radieske/live-odds-client/internal/live-odds/store"
	"github.com/radieske/live-odds-client/pkg/contracts/events"
	"github.com/radieske/live-odds-client/pkg/contracts/topics"
)

func startSim(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	sim := New(cfg, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(sim.HandleWS))
	t.Cleanup(srv.Close)
	return sim, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *channel.Client {
	t.Helper()
	c := channel.NewClient(channel.Config{URL: url, JoinTimeout: 2 * time.Second, PushTimeout: 2 * time.Second}, nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func next(t *testing.T, c *channel.Client) channel.Message {
	t.Helper()
	select {
	case m := <-c.Messages():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return channel.Message{}
	}
}

func TestNewCatalog(t *testing.T) {
	sim := New(Config{Events: 5, Seed: 1}, zap.NewNop())

	evs := sim.Events("soccer")
	require.Len(t, evs, 5)
	for _, ev := range evs {
		assert.NotEqual(t, ev.T1.N, ev.T2.N)
		assert.Equal(t, "soccer", ev.Sport)
		assert.NotEmpty(t, ev.Odds)
	}
	assert.Len(t, sim.Events("tennis"), 5)
	assert.Nil(t, sim.Events("golf"))
}

func TestJoinReturnsPageAndPresence(t *testing.T) {
	_, url := startSim(t, Config{Events: 5, PageSize: 2, Seed: 1})
	c := dial(t, url)

	res, err := c.Join(context.Background(), topics.Match("soccer"), events.JoinParams{Page: 3})
	require.NoError(t, err)

	var reply events.JoinReply
	require.NoError(t, json.Unmarshal(res.Response, &reply))
	assert.Len(t, reply.Events, 1)
	require.NotNil(t, reply.TotalPages)
	assert.Equal(t, 3, *reply.TotalPages)
	assert.Equal(t, 5, *reply.TotalEvents)

	m := next(t, c)
	assert.Equal(t, topics.PresenceState, m.Event)
	assert.Equal(t, res.JoinRef, m.JoinRef)
	var state events.PresenceState
	require.NoError(t, json.Unmarshal(m.Payload, &state))
	assert.Len(t, state, 1)
}

func TestJoinUnknownTopic(t *testing.T) {
	_, url := startSim(t, Config{Events: 1, Seed: 1})
	c := dial(t, url)

	_, err := c.Join(context.Background(), topics.Match("golf"), nil)

	var re *channel.ReplyError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, channel.StatusError, re.Status)
}

func TestPresenceDiffOnJoinAndLeave(t *testing.T) {
	_, url := startSim(t, Config{Events: 1, Seed: 1})
	a := dial(t, url)
	b := dial(t, url)
	topic := topics.Match("tennis")

	_, err := a.Join(context.Background(), topic, nil)
	require.NoError(t, err)
	require.Equal(t, topics.PresenceState, next(t, a).Event)

	_, err = b.Join(context.Background(), topic, nil)
	require.NoError(t, err)

	m := next(t, a)
	require.Equal(t, topics.PresenceDiff, m.Event)
	var diff events.PresenceDiff
	require.NoError(t, json.Unmarshal(m.Payload, &diff))
	assert.Len(t, diff.Joins, 1)
	assert.Empty(t, diff.Leaves)

	require.NoError(t, b.Leave(context.Background(), topic))
	m = next(t, a)
	require.Equal(t, topics.PresenceDiff, m.Event)
	require.NoError(t, json.Unmarshal(m.Payload, &diff))
	assert.Empty(t, diff.Joins)
	assert.Len(t, diff.Leaves, 1)
}

func TestGetEventCount(t *testing.T) {
	_, url := startSim(t, Config{Events: 7, PageSize: 3, Seed: 1})
	c := dial(t, url)
	_, err := c.Join(context.Background(), topics.Match("basketball"), nil)
	require.NoError(t, err)

	resp, err := c.Push(context.Background(), topics.Match("basketball"), topics.GetEventCount,
		events.EventCountParams{Sport: "basketball"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_pages":3,"total_events":7}`, string(resp))
}

// o cliente completo (canal + sessão + store) converge para o estado do simulador
func TestSessionConvergesWithSimulator(t *testing.T) {
	sim, url := startSim(t, Config{Events: 6, PageSize: 50, Shards: 2, Tick: time.Second, Seed: 42})
	c := dial(t, url)

	st := store.New(nil)
	tr := presence.NewTracker()
	sess := session.New(c, &session.Dispatcher{Store: st, Presence: tr}, session.Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sess.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var err error
	require.Eventually(t, func() bool {
		err = sess.Subscribe(context.Background(), "soccer", 1)
		return !errors.Is(err, session.ErrStopped)
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Snapshot().Len())

	for i := 0; i < 10; i++ {
		sim.Step()
	}

	converged := func() bool {
		snap := st.Snapshot()
		simEvents := sim.Events("soccer")
		if snap.Len() != len(simEvents) {
			return false
		}
		for _, ev := range simEvents {
			got, ok := snap.Get(ev.ID.String())
			if !ok || got.ElapsedSeconds != int(ev.Et) || got.ScoreHome != ev.Stats.A[0].String() {
				return false
			}
		}
		return true
	}
	require.Eventually(t, converged, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return tr.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	p, err := sess.RefreshCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 6, p.TotalCount)
}

// depois de uma queda de rede a sessão volta sozinha para a mesma inscrição
func TestSessionRejoinsAfterDisconnect(t *testing.T) {
	sim, url := startSim(t, Config{Events: 4, PageSize: 50, Tick: time.Second, Seed: 7})
	c := channel.NewClient(channel.Config{URL: url, JoinTimeout: 2 * time.Second, ReconnectWait: 20 * time.Millisecond}, nil)

	st := store.New(nil)
	sess := session.New(c, &session.Dispatcher{Store: st, Presence: presence.NewTracker()}, session.Options{}, nil)
	rejoined := make(chan error, 4)
	c.OnReconnect = func() { go func() { rejoined <- sess.Rejoin(context.Background()) }() }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = c.Start(ctx); done <- struct{}{} }()
	go func() { _ = sess.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	var err error
	require.Eventually(t, func() bool {
		err = sess.Subscribe(context.Background(), "basketball", 1)
		return !errors.Is(err, session.ErrStopped)
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	first := sess.Status().JoinRef

	require.Equal(t, 1, sim.DisconnectAll())

	select {
	case err := <-rejoined:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("session did not rejoin")
	}
	status := sess.Status()
	assert.Equal(t, session.StateJoined, status.State)
	assert.Equal(t, "basketball", status.Sport)
	assert.NotEqual(t, first, status.JoinRef)

	// atualizações depois da volta continuam chegando
	sim.Step()
	require.Eventually(t, func() bool {
		snap := st.Snapshot()
		for _, ev := range sim.Events("basketball") {
			got, ok := snap.Get(ev.ID.String())
			if !ok || got.ElapsedSeconds != int(ev.Et) {
				return false
			}
		}
		return snap.Len() == len(sim.Events("basketball"))
	}, 2*time.Second, 10*time.Millisecond)
}
