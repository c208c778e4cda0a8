// Package handlers exposes the approval service over HTTP with gin.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/auth"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/validation"
)

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Service *approval.Service
	Gate    auth.Gate
	Log     *logger.Logger

	// Idempotency enables Idempotency-Key replay on create when set.
	Idempotency *idempotency.Store
}

type handler struct {
	svc       *approval.Service
	idem      *idempotency.Store
	log       *logger.Logger
	validator *validatorv10.Validate
}

// NewRouter returns a gin engine with middleware and all routes registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	r := gin.New()
	r.Use(Recovery(cfg.Log), RequestLogger(cfg.Log))
	RegisterRoutes(r, cfg)
	return r
}

// RegisterRoutes registers the service's routes on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	h := &handler{
		svc:       cfg.Service,
		idem:      cfg.Idempotency,
		log:       log,
		validator: validation.New(),
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to Purchase Order Management System API"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", auth.Middleware(cfg.Gate, log))
	authed.GET("/me", h.me)

	po := authed.Group("/purchase-orders")
	po.POST("", h.createOrder)
	po.GET("", h.listOrders)
	po.GET("/:id", h.getOrder)
	po.GET("/:id/approvals", h.listApprovals)
	po.POST("/:id/approve", h.decide)
}

func (h *handler) me(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	c.JSON(http.StatusOK, actor)
}
