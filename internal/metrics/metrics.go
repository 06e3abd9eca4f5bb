// Package metrics exports player activity as Prometheus metrics. It is fed
// from the supervisor's event bus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caption_router"

var states = []connection.State{
	connection.StateIdle,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateDisconnected,
	connection.StateError,
	connection.StateEnded,
}

// Collector holds the metrics of one supervisor on its own registry.
type Collector struct {
	registry *prometheus.Registry

	players     prometheus.Gauge
	state       *prometheus.GaugeVec
	reconnects  *prometheus.CounterVec
	frames      *prometheus.CounterVec
	clips       *prometheus.CounterVec
	clipLatency *prometheus.HistogramVec
	clipBytes   *prometheus.CounterVec
	transcript  *prometheus.CounterVec
	errors      *prometheus.CounterVec
}

// New creates a collector with its metrics registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		players: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Number of live players",
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the player's current connection state, 0 otherwise",
		}, []string{"player", "state"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Reconnects scheduled",
		}, []string{"player"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "frames_total",
			Help:      "Inbound frames by kind",
		}, []string{"player", "kind"}),
		clips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "clips_total",
			Help:      "Clips by outcome: played, stopped, stalled or failed",
		}, []string{"player", "outcome"}),
		clipLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "clip_latency_seconds",
			Help:      "Time from enqueue until a clip finished",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		clipBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "bytes_total",
			Help:      "Encoded audio bytes started",
		}, []string{"player"}),
		transcript: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transcript",
			Name:      "updates_total",
			Help:      "Transcript changes",
		}, []string{"player"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Surfaced player errors",
		}, []string{"component", "severity"}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the collector to bus. The returned function
// unsubscribes.
func (c *Collector) Attach(bus *supervisor.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(supervisor.PlayerAddedEvent) {
			c.players.Inc()
		}),
		bus.Subscribe(func(e supervisor.PlayerRemovedEvent) {
			c.players.Dec()
			c.forget(e.PlayerID)
		}),
		bus.Subscribe(func(e supervisor.StatusChangedEvent) {
			c.setState(e.PlayerID, e.State)
		}),
		bus.Subscribe(func(e supervisor.ReconnectScheduledEvent) {
			c.reconnects.WithLabelValues(e.PlayerID).Inc()
		}),
		bus.Subscribe(func(e supervisor.FrameReceivedEvent) {
			kind := string(e.Kind)
			if kind == "" {
				kind = "invalid"
			}
			c.frames.WithLabelValues(e.PlayerID, kind).Inc()
		}),
		bus.Subscribe(func(e supervisor.ClipStartedEvent) {
			c.clipBytes.WithLabelValues(e.PlayerID).Add(float64(e.Bytes))
		}),
		bus.Subscribe(func(e supervisor.ClipFinishedEvent) {
			outcome := e.Outcome()
			c.clips.WithLabelValues(e.PlayerID, outcome).Inc()
			c.clipLatency.WithLabelValues(outcome).Observe(e.Latency.Seconds())
		}),
		bus.Subscribe(func(e supervisor.TranscriptUpdatedEvent) {
			c.transcript.WithLabelValues(e.PlayerID).Inc()
		}),
		bus.Subscribe(func(e supervisor.PlayerErrorEvent) {
			c.errors.WithLabelValues(e.Err.Component, e.Err.Severity.String()).Inc()
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (c *Collector) setState(player string, current connection.State) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(player, s.String()).Set(v)
	}
}

// forget drops every series labelled with player.
func (c *Collector) forget(player string) {
	labels := prometheus.Labels{"player": player}
	c.state.DeletePartialMatch(labels)
	c.reconnects.DeletePartialMatch(labels)
	c.frames.DeletePartialMatch(labels)
	c.clips.DeletePartialMatch(labels)
	c.clipBytes.DeletePartialMatch(labels)
	c.transcript.DeletePartialMatch(labels)
}

// Handler returns the HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
