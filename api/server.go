// Package api exposes the analysis pipeline over HTTP: current metrics,
// worker status, stream discovery and a server-sent event feed of frames.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cortex-data/focus.report/internal/analysis"
	"github.com/cortex-data/focus.report/internal/config"
	"github.com/cortex-data/focus.report/internal/httputil"
	"github.com/cortex-data/focus.report/internal/monitoring"
	"github.com/cortex-data/focus.report/internal/ringbuf"
	"github.com/cortex-data/focus.report/internal/stream"
	"github.com/cortex-data/focus.report/internal/version"
)

// subscriberBuffer is the per-client frame queue for the SSE feed. A
// client that cannot drain this many frames starts losing the oldest.
const subscriberBuffer = 8

// historyWindowSeconds is the span of aggregate history the API retains
// for trend displays.
const historyWindowSeconds = 60.0

// StreamLister returns the currently discoverable streams.
type StreamLister func() []stream.Descriptor

// WorkerStateFn reports the worker's lifecycle state.
type WorkerStateFn func() string

// Server handles the HTTP API. It implements analysis.Sink so it can be
// wired directly into the worker's sink fan-out.
type Server struct {
	cfg         *config.TuningConfig
	listStreams StreamLister
	workerState WorkerStateFn

	mu          sync.RWMutex
	latest      *analysis.MetricFrame
	status      string
	statusAt    time.Time
	frameCount  uint64
	history     *ringbuf.TwoChannelRing
	subscribers map[chan analysis.MetricFrame]struct{}
}

// NewServer creates a server. listStreams and workerState may be nil, in
// which case the corresponding endpoints report an empty result.
func NewServer(cfg *config.TuningConfig, listStreams StreamLister, workerState WorkerStateFn) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	frameRate := 1.0 / cfg.GetTickPeriod().Seconds()
	return &Server{
		cfg:         cfg,
		listStreams: listStreams,
		workerState: workerState,
		history:     ringbuf.NewTwoChannelRing(ringbuf.DisplayCapacity(historyWindowSeconds, frameRate, cfg.GetDisplayMargin())),
		subscribers: make(map[chan analysis.MetricFrame]struct{}),
	}
}

// OnMetrics records the latest frame and fans it out to SSE subscribers.
// Slow subscribers lose their oldest queued frame rather than stalling the
// worker loop.
func (s *Server) OnMetrics(frame analysis.MetricFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &frame
	s.frameCount++
	s.history.Extend([]float64{frame.EndTimestamp}, []float64{frame.Aggregate})
	for ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

// OnStatus records the most recent worker status line.
func (s *Server) OnStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.statusAt = time.Now()
	s.mu.Unlock()
}

func (s *Server) subscribe() chan analysis.MetricFrame {
	ch := make(chan analysis.MetricFrame, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan analysis.MetricFrame) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	// Handle the home page
	w.Write([]byte("Welcome to the Focus Report Server!"))
}

// ServeMux returns the API route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/streams", s.handleStreams)
	mux.HandleFunc("/api/metrics/latest", s.handleLatest)
	mux.HandleFunc("/api/metrics/history", s.handleHistory)
	mux.HandleFunc("/api/metrics/stream", s.handleMetricsStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	descriptors := []stream.Descriptor{}
	if s.listStreams != nil {
		if found := s.listStreams(); found != nil {
			descriptors = found
		}
	}

	httputil.WriteJSONOK(w, descriptors)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.RLock()
	frame := s.latest
	s.mu.RUnlock()

	if frame == nil {
		httputil.NotFound(w, "no metrics yet")
		return
	}
	httputil.WriteJSONOK(w, frame)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	s.mu.RLock()
	resp := map[string]interface{}{
		"status":      s.status,
		"frame_count": s.frameCount,
		"version":     version.Version,
	}
	if !s.statusAt.IsZero() {
		resp["status_at"] = s.statusAt.UTC().Format(time.RFC3339Nano)
	}
	s.mu.RUnlock()

	if s.workerState != nil {
		resp["worker_state"] = s.workerState()
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}

// handleHistory serves the recent aggregate trend. Query params: n caps
// the number of points (default all retained), skip drops the oldest
// points from the returned window.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	n := s.history.Cap()
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "n must be a non-negative integer")
			return
		}
		n = v
	}
	skip := 0
	if raw := r.URL.Query().Get("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "skip must be a non-negative integer")
			return
		}
		skip = v
	}

	// Ring views are valid only until the next write; copy them out
	// under the same lock that serializes OnMetrics.
	s.mu.Lock()
	ts, vs := s.history.Data(n, skip)
	timestamps := append([]float64{}, ts...)
	aggregates := append([]float64{}, vs...)
	s.mu.Unlock()

	httputil.WriteJSONOK(w, map[string][]float64{
		"timestamps": timestamps,
		"aggregates": aggregates,
	})
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()
	monitoring.Debugf("api: metrics subscriber connected from %s", r.RemoteAddr)

	for {
		select {
		case frame := <-ch:
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			monitoring.Debugf("api: metrics subscriber disconnected from %s", r.RemoteAddr)
			return
		}
	}
}
