// Package api exposes the brokerage core over HTTP. The surface is thin:
// requests are validated, handed to the services and the domain error kind
// is mapped onto a status code. Authorization is not done here; callers are
// trusted with the customer identifiers they present.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/brokerage/internal/customer"
	"github.com/Aidin1998/brokerage/internal/ledger"
	"github.com/Aidin1998/brokerage/internal/matching"
	"github.com/Aidin1998/brokerage/internal/order"
	"github.com/Aidin1998/brokerage/internal/trade"
	"github.com/Aidin1998/brokerage/internal/transaction"
	"github.com/Aidin1998/brokerage/pkg/errors"
)

// Server represents the API server
type Server struct {
	router       *gin.Engine
	logger       *zap.Logger
	validator    *validator.Validate
	customers    *customer.Service
	ledger       *ledger.Service
	orders       *order.Service
	trades       *trade.Recorder
	transactions *transaction.Service
	engine       *matching.Engine
}

// NewServer creates a new API server with injected services
func NewServer(
	logger *zap.Logger,
	customers *customer.Service,
	ledgerSvc *ledger.Service,
	orders *order.Service,
	trades *trade.Recorder,
	transactions *transaction.Service,
	engine *matching.Engine,
) *Server {
	server := &Server{
		logger:       logger,
		validator:    validator.New(),
		customers:    customers,
		ledger:       ledgerSvc,
		orders:       orders,
		trades:       trades,
		transactions: transactions,
		engine:       engine,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/metrics", gin.WrapH(promhttp.Handler()))

		v1.POST("/customers", s.createCustomer)
		v1.GET("/customers", s.listCustomers)
		v1.GET("/customers/:id", s.getCustomer)

		v1.POST("/orders", s.createOrder)
		v1.GET("/orders", s.listOrders)
		v1.DELETE("/orders/:id", s.cancelOrder)
		v1.GET("/orders/:id/trades", s.listOrderTrades)

		v1.GET("/assets", s.listAssets)

		v1.POST("/transactions", s.createTransaction)
		v1.GET("/transactions", s.listTransactions)

		v1.POST("/match/:assetCode", s.matchOrders)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

// writeError maps the domain error kind onto a status code. Internal errors
// are logged and hidden behind a generic message.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errors.KindInvalidArgument:
		status = http.StatusBadRequest
	case errors.KindCustomerNotFound, errors.KindOrderNotFound:
		status = http.StatusNotFound
	case errors.KindInsufficientBalance:
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("handler error", zap.Error(err))
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": gin.H{"kind": kind, "message": message}})
}

func (s *Server) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.writeError(c, errors.ErrInvalidArgument.Explain("malformed request body").Wrap(err))
		return false
	}
	if err := s.validator.Struct(req); err != nil {
		s.writeError(c, errors.ErrInvalidArgument.Explain("invalid request").Wrap(err))
		return false
	}
	return true
}
