// Package api 只读 HTTP 接口：订单、账户、仓位、健康检查与指标。
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"exec-engine-go/internal/engine"
	"exec-engine-go/internal/store"
	"exec-engine-go/inventory"
	"exec-engine-go/order"
)

// HealthChecker 提供引擎健康状态。
type HealthChecker interface {
	Health() engine.Health
}

// Server 只读 API，所有数据来自缓存快照。
type Server struct {
	cache   *store.Cache
	health  HealthChecker
	metrics http.Handler
	origins []string
	logger  *zap.Logger
	router  *mux.Router
}

// NewServer 创建 API；metrics 为 nil 时不挂载 /metrics。
func NewServer(cache *store.Cache, health HealthChecker, metrics http.Handler, origins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cache:   cache,
		health:  health,
		metrics: metrics,
		origins: origins,
		logger:  logger.Named("api"),
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	v1.HandleFunc("/positions", s.handleGetPositions).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler 带 CORS 的根处理器。
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// GET /api/v1/orders?status=open|closed&instrument=AAPL.NASDAQ
func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(r.URL.Query().Get("status"))
	instrument := r.URL.Query().Get("instrument")

	orders := s.cache.Orders(func(o *order.Order) bool {
		if instrument != "" && o.InstrumentID.String() != instrument {
			return false
		}
		switch status {
		case "open":
			return o.IsOpen()
		case "closed":
			return o.IsTerminal()
		}
		return true
	})
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView(o))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, ok := s.cache.Order(order.ClientOrderID(id))
	if !ok {
		s.respondError(w, http.StatusNotFound, "order not found", id)
		return
	}
	s.respondJSON(w, http.StatusOK, orderView(o))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	acc, ok := s.cache.Account(inventory.AccountID(id))
	if !ok {
		s.respondError(w, http.StatusNotFound, "account not found", id)
		return
	}
	s.respondJSON(w, http.StatusOK, AccountView{
		ID:           string(acc.ID),
		Type:         string(acc.Type),
		BaseCurrency: acc.BaseCurrency,
		Balances:     acc.Balances(),
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	positions := s.cache.Positions()
	out := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		if account != "" && string(p.AccountID) != account {
			continue
		}
		out = append(out, positionView(p))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	h := s.health.Health()
	code := http.StatusOK
	if !h.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, h)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg, detail string) {
	s.respondJSON(w, status, ErrorResponse{Error: msg, Message: detail})
}
