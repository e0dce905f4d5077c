// Package kujo serves a Simulation over HTTP: snapshots, an SSE stream of events, switch and step commands, and a status page.
package kujo

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gorilla/websocket"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/senro/sim"
	"nyiyui.ca/hato/senro/tal"
)

//go:embed index.html
var templates embed.FS

const (
	streamSnapshot = "snapshot"
	defaultJournal = 20
	// maxSegments bounds /snapshot?segments, as every branch gets that many cells.
	maxSegments = 1000
)

type Conf struct {
	// AllowedOrigins are the browser origins (besides kujo's own) that may use
	// kujo, for CORS, /control and the POST endpoints. "*" allows any origin.
	// If empty, only same-origin browser requests are allowed.
	AllowedOrigins []string
}

type Server struct {
	sim      *sim.Simulation
	s        *sse.Server
	t        *template.Template
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	origins  []string
	handler  http.Handler
	events   chan sim.Event
	done     chan struct{}
}

func NewServer(sm *sim.Simulation, conf Conf) *Server {
	s := &Server{
		sim:     sm,
		s:       sse.New(),
		mux:     http.NewServeMux(),
		origins: conf.AllowedOrigins,
		events:  make(chan sim.Event),
		done:    make(chan struct{}),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(streamSnapshot)
	s.t = template.Must(template.New("index").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"occupancyBar": func(cells []float64) string {
			bar := make([]rune, len(cells))
			for i, c := range cells {
				switch {
				case c >= 1:
					bar[i] = '█'
				case c > 0:
					bar[i] = '▄'
				default:
					bar[i] = '·'
				}
			}
			return string(bar)
		},
	}).ParseFS(templates, "*.html"))
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	s.setup()
	s.handler = s.mux
	if len(s.origins) > 0 {
		s.handler = cors.New(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		}).Handler(s.mux)
	}
	s.sim.Events().Subscribe("kujo", s.events)
	go s.forward()
	return s
}

func (s *Server) setup() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /journal", s.handleJournal)
	s.mux.HandleFunc("GET /events", s.s.ServeHTTP)
	s.mux.HandleFunc("POST /step", s.sameOrigin(s.handleStep))
	s.mux.HandleFunc("POST /switch", s.sameOrigin(s.handleSwitch))
	s.mux.HandleFunc("GET /control", s.handleControl)
}

// originAllowed reports whether r may act on the simulation.
// Requests without an Origin header don't come from a browser page, and are allowed.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// sameOrigin rejects requests from pages on origins that aren't allowed.
// CORS alone doesn't stop a simple POST from being sent.
func (s *Server) sameOrigin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			zap.S().Warnw("kujo: origin not allowed", "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, errorBody{Kind: kindForbidden, Message: "origin not allowed"})
			return
		}
		h(w, r)
	}
}

// Handler returns the handler for every endpoint, with CORS if origins are allowed.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops forwarding events and closes every SSE connection.
func (s *Server) Close() {
	close(s.done)
	s.s.Close()
}

func (s *Server) forward() {
	defer s.sim.Events().Unsubscribe(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			data, err := json.Marshal(ev)
			if err != nil {
				zap.S().Errorw("kujo: marshal event", "error", err)
				continue
			}
			s.s.TryPublish(streamSnapshot, &sse.Event{
				ID:    []byte(strconv.Itoa(ev.Snapshot.Steps)),
				Event: []byte(ev.Kind),
				Data:  data,
			})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		zap.S().Warnw("kujo: write json", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := s.t.ExecuteTemplate(&buf, "index", map[string]any{
		"run":  s.sim.ID(),
		"snap": s.sim.Snapshot(sim.DefaultSegments),
		"now":  time.Now().Format("15:04:05"),
	})
	if err != nil {
		zap.S().Errorw("kujo: render index", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	segments := sim.DefaultSegments
	if raw := r.URL.Query().Get("segments"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: "segments: " + err.Error()})
			return
		}
		if n > maxSegments {
			writeJSON(w, http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: fmt.Sprintf("segments: %d is more than %d", n, maxSegments)})
			return
		}
		segments = n
	}
	writeJSON(w, http.StatusOK, s.sim.Snapshot(segments))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	j := s.sim.Journal()
	if j == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Kind: kindNotFound, Message: "no journal"})
		return
	}
	n := defaultJournal
	if raw := r.URL.Query().Get("n"); raw != "" {
		var err error
		n, err = strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: "n: " + err.Error()})
			return
		}
	}
	rs, err := j.Latest(n)
	if err != nil {
		zap.S().Errorw("kujo: journal", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: kindInternal, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	dt, err := strconv.ParseFloat(r.URL.Query().Get("dt"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: "dt: " + err.Error()})
		return
	}
	writeResult(w, s.step(dt))
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, err := parseState(q.Get("state"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: kindBadRequest, Message: "state: " + err.Error()})
		return
	}
	writeResult(w, s.setSwitch(q.Get("tag"), state))
}

type result struct {
	snap tal.Snapshot
	err  error
}

func (s *Server) step(dt float64) result {
	snap, err := s.sim.Step(dt)
	return result{snap, err}
}

func (s *Server) setSwitch(tag string, state bool) result {
	snap, err := s.sim.SetSwitch(tag, layoutState(state))
	return result{snap, err}
}

func writeResult(w http.ResponseWriter, res result) {
	if res.err != nil {
		status, body := describeError(res.err)
		if stepped(res.err) {
			body.Snapshot = &res.snap
		}
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, res.snap)
}
