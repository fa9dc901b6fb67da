// Package control exposes the query/mutation HTTP surface and a
// WebSocket event stream for the engine's running strategy drivers.
package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/portfolio"
	"github.com/atlas-desktop/trading-engine/internal/strategy"
)

// DriverHandle is the subset of a running strategy driver the control
// surface can query and mutate.
type DriverHandle struct {
	Key       string
	Portfolio *portfolio.Portfolio
	Driver    *strategy.Driver
}

// Event is a structured message pushed to subscribed WebSocket clients.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server is the control-plane HTTP/WebSocket server. One instance
// serves every registered driver handle.
type Server struct {
	logger   *zap.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.RWMutex
	drivers map[string]*DriverHandle
	clients map[string]*client
}

// NewServer constructs a control server with no registered drivers.
func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		logger:  logger.Named("control"),
		router:  mux.NewRouter(),
		drivers: make(map[string]*DriverHandle),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

// Register adds a driver handle under its strategy key.
func (s *Server) Register(h *DriverHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[h.Key] = h
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies", s.handleListStrategies).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies/{key}/portfolio", s.handlePortfolio).Methods("GET")
	s.router.HandleFunc("/api/v1/strategies/{key}/lifecycle", s.handleLifecycle).Methods("POST")
	s.router.HandleFunc("/api/v1/strategies/{key}/model-reset", s.handleModelReset).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start serves HTTP on addr. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info("control server starting", zap.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "healthy", "time": time.Now().Unix()})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.drivers))
	for k := range s.drivers {
		keys = append(keys, k)
	}
	writeJSON(w, map[string]any{"strategies": keys})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	h := s.lookup(key)
	if h == nil {
		http.Error(w, "unknown strategy", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"value":          h.Portfolio.Value(),
		"pnl":            h.Portfolio.PnL(),
		"current_return": h.Portfolio.CurrentReturn(),
		"open_positions": h.Portfolio.OpenPositions(),
		"history":        h.Portfolio.History(),
	})
}

// lifecycleRequest names the supervisor command to apply.
type lifecycleRequest struct {
	Command string `json:"command"` // "restart" | "stop_trading" | "resume_trading"
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	h := s.lookup(key)
	if h == nil {
		http.Error(w, "unknown strategy", http.StatusNotFound)
		return
	}
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Command {
	case "stop_trading":
		h.Driver.StopTrading()
	case "resume_trading":
		h.Driver.ResumeTrading()
	case "restart":
		h.Driver.Stop()
	default:
		http.Error(w, fmt.Sprintf("unknown command %q", req.Command), http.StatusBadRequest)
		return
	}
	s.broadcast(Event{ID: uuid.NewString(), Type: "lifecycle", Payload: map[string]string{"strategy": key, "command": req.Command}, Timestamp: time.Now().UnixMilli()})
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleModelReset(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	h := s.lookup(key)
	if h == nil {
		http.Error(w, "unknown strategy", http.StatusNotFound)
		return
	}
	var req strategy.ModelResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.Driver.ModelReset(req)
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) lookup(key string) *DriverHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drivers[key]
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	c := &client{conn: conn, send: make(chan []byte, 64)}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	go s.writePump(id, c)
	go s.readPump(id, c)
}

func (s *Server) readPump(id string, c *client) {
	defer s.disconnect(id, c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(id string, c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.disconnect(id, c)
			return
		}
	}
}

func (s *Server) disconnect(id string, c *client) {
	s.mu.Lock()
	if _, ok := s.clients[id]; ok {
		delete(s.clients, id)
		close(c.send)
		c.conn.Close()
	}
	s.mu.Unlock()
}

// broadcast pushes ev to every connected WebSocket client, dropping it
// for clients whose send buffer is full rather than blocking.
func (s *Server) broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Warn("dropping event for slow client", zap.String("client", id))
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
