package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/protocol"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timed out waiting for %s", what)
}

func TestCollector_FromBus(t *testing.T) {
	c := New()
	bus := supervisor.NewBus()
	defer c.Attach(bus)()

	bus.Publish(supervisor.PlayerAddedEvent{PlayerID: "p1"})
	bus.Publish(supervisor.StatusChangedEvent{PlayerID: "p1", State: connection.StateConnected})
	bus.Publish(supervisor.FrameReceivedEvent{PlayerID: "p1", Kind: protocol.TypePhrase})
	bus.Publish(supervisor.FrameReceivedEvent{PlayerID: "p1", Err: protocol.ErrMalformed})
	bus.Publish(supervisor.ReconnectScheduledEvent{PlayerID: "p1", Attempt: 1, Delay: time.Second})
	bus.Publish(supervisor.ClipStartedEvent{PlayerID: "p1", Bytes: 1024})
	bus.Publish(supervisor.ClipFinishedEvent{PlayerID: "p1", Latency: time.Second})
	bus.Publish(supervisor.ClipFinishedEvent{PlayerID: "p1", Err: audio.ErrStalled})
	bus.Publish(supervisor.PlayerErrorEvent{
		Err: supervisor.NewPlayerError(errors.New("boom"), "p1", "audio", "play").WithSeverity(supervisor.SeverityWarning),
	})

	tests := []struct {
		name string
		get  func() float64
		want float64
	}{
		{"players", func() float64 { return testutil.ToFloat64(c.players) }, 1},
		{"connected", func() float64 { return testutil.ToFloat64(c.state.WithLabelValues("p1", "connected")) }, 1},
		{"phrase frames", func() float64 { return testutil.ToFloat64(c.frames.WithLabelValues("p1", "phrase")) }, 1},
		{"invalid frames", func() float64 { return testutil.ToFloat64(c.frames.WithLabelValues("p1", "invalid")) }, 1},
		{"reconnects", func() float64 { return testutil.ToFloat64(c.reconnects.WithLabelValues("p1")) }, 1},
		{"bytes", func() float64 { return testutil.ToFloat64(c.clipBytes.WithLabelValues("p1")) }, 1024},
		{"played", func() float64 { return testutil.ToFloat64(c.clips.WithLabelValues("p1", "played")) }, 1},
		{"stalled", func() float64 { return testutil.ToFloat64(c.clips.WithLabelValues("p1", "stalled")) }, 1},
		{"errors", func() float64 { return testutil.ToFloat64(c.errors.WithLabelValues("audio", "warning")) }, 1},
	}
	for _, tt := range tests {
		eventually(t, tt.name, func() bool { return tt.get() == tt.want })
	}

	// Only the current state is set.
	if v := testutil.ToFloat64(c.state.WithLabelValues("p1", "idle")); v != 0 {
		t.Errorf("Expected idle=0, got %v", v)
	}
}

func TestCollector_ForgetsRemovedPlayers(t *testing.T) {
	c := New()
	bus := supervisor.NewBus()
	defer c.Attach(bus)()

	bus.Publish(supervisor.PlayerAddedEvent{PlayerID: "gone"})
	bus.Publish(supervisor.ReconnectScheduledEvent{PlayerID: "gone", Attempt: 1})
	eventually(t, "reconnect series", func() bool { return testutil.CollectAndCount(c.reconnects) == 1 })

	bus.Publish(supervisor.PlayerRemovedEvent{PlayerID: "gone"})
	eventually(t, "series removal", func() bool {
		return testutil.CollectAndCount(c.reconnects) == 0 && testutil.CollectAndCount(c.state) == 0
	})
	eventually(t, "player gauge", func() bool { return testutil.ToFloat64(c.players) == 0 })
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.players.Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "caption_router_players 3") {
		t.Error("expected player gauge in response")
	}
}
