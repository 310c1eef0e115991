// Package api serves the order API over HTTP and streams book and trade
// projections over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bhanukaranwal/SetuBond/pkg/logging"
	"github.com/bhanukaranwal/SetuBond/pkg/oms"
	"github.com/bhanukaranwal/SetuBond/pkg/oms/model"
	"github.com/bhanukaranwal/SetuBond/pkg/orderbook"
	"github.com/bhanukaranwal/SetuBond/pkg/projector"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

type Config struct {
	Addr string `yaml:"addr"`
	// CORSOrigins empty allows every origin.
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Server struct {
	cfg      Config
	oms      oms.IOMS
	query    oms.IQuery
	hub      *Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config, o oms.IOMS, query oms.IQuery, hub *Hub, logger *logging.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		cfg:    cfg,
		oms:    o,
		query:  query,
		hub:    hub,
		logger: logger.With(zap.String("component", "api")),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.allowedOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) allowedOrigin(origin string) bool {
	if len(s.cfg.CORSOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", s.submitOrder)
		r.Get("/orders/{id}", s.getOrder)
		r.Delete("/orders/{id}", s.cancelOrder)
		r.Get("/orders/{id}/events", s.getOrderEvents)
		r.Get("/books/{instrument}", s.getBook)
		r.Get("/instruments/{instrument}/trades", s.getTrades)
	})
	r.Get("/ws", s.handleWebSocket)

	return r
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Debug(ctx, "http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type OrderResponse struct {
	Order          *model.Order   `json:"order"`
	Trades         []*model.Trade `json:"trades"`
	Counterparties []*model.Order `json:"counterparties,omitempty"`
}

type CancelResponse struct {
	Order    *model.Order `json:"order"`
	Accepted bool         `json:"accepted"`
	Reason   string       `json:"reason,omitempty"`
}

type BookResponse struct {
	Instrument string            `json:"instrument"`
	Bids       []orderbook.Level `json:"bids"`
	Asks       []orderbook.Level `json:"asks"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req model.AddOrder
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.TransactTime.IsZero() {
		req.TransactTime = time.Now().UTC()
	}
	res, err := s.oms.AddOrder(r.Context(), &req)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	status := http.StatusCreated
	if res.Order.Status == model.OrderStatusRejected {
		status = http.StatusOK
	}
	trades := res.Trades
	if trades == nil {
		trades = []*model.Trade{}
	}
	writeJSON(w, status, OrderResponse{Order: res.Order, Trades: trades, Counterparties: res.Counterparties})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		s.writeError(r.Context(), w, errMissingOrderID)
		return
	}
	res, err := s.oms.CancelOrder(r.Context(), &model.CancelOrder{OrderID: orderID})
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	if !res.Accepted {
		status = http.StatusConflict
	}
	writeJSON(w, status, CancelResponse{Order: res.Order, Accepted: res.Accepted, Reason: res.Reason})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.query.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) getOrderEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.query.OrderEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) book(instrument string, depth int) BookResponse {
	bids, asks := s.query.Book(instrument, depth)
	if bids == nil {
		bids = []orderbook.Level{}
	}
	if asks == nil {
		asks = []orderbook.Level{}
	}
	return BookResponse{Instrument: instrument, Bids: bids, Asks: asks}
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "depth must be a non-negative integer"})
			return
		}
		depth = n
	}
	writeJSON(w, http.StatusOK, s.book(chi.URLParam(r, "instrument"), depth))
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxTradeLimit)
		}
	}
	trades, err := s.query.Trades(r.Context(), chi.URLParam(r, "instrument"), limit)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if trades == nil {
		trades = []*model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	instrument := r.URL.Query().Get("instrument")
	client := &Client{
		hub:        s.hub,
		conn:       conn,
		send:       make(chan []byte, clientBuffer),
		instrument: instrument,
	}

	// the initial snapshot is queued before registering so it comes first
	if instrument != "" {
		b := s.book(instrument, 0)
		data, _ := json.Marshal(streamMessage{Type: "book", Book: &projector.BookUpdate{
			Instrument: instrument, Bids: b.Bids, Asks: b.Asks, Timestamp: time.Now().UTC(),
		}})
		client.send <- data
	}
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
