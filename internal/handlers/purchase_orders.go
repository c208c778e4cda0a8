package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/auth"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/validation"
)

const idempotencyHeader = "Idempotency-Key"

// createOrder handles POST /purchase-orders. With an Idempotency-Key header
// and a configured store, retries replay the first response.
func (h *handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	actor, _ := auth.ActorFrom(c)

	var req validation.CreatePurchaseOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	in := approval.NewOrder{
		ItemName:    req.ItemName,
		Quantity:    req.Quantity,
		Cost:        *req.Cost,
		Description: req.Description,
		VendorName:  req.VendorName,
	}

	clientKey := c.GetHeader(idempotencyHeader)
	if clientKey == "" || h.idem == nil {
		o, err := h.svc.CreateOrder(ctx, actor, in)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		h.writeCreated(c, o)
		return
	}

	// keys are scoped per caller so two users cannot collide
	key := idempotency.Key("create_order", actor.ID, clientKey)
	created, err := h.idem.CreateIfNotExists(ctx, key, "")
	if err != nil {
		respondError(c, h.log, fmt.Errorf("idempotency check: %w", err))
		return
	}
	if !created {
		h.replay(c, key)
		return
	}

	o, err := h.svc.CreateOrder(ctx, actor, in)
	if err != nil {
		if merr := h.idem.MarkFailed(ctx, key, err.Error()); merr != nil {
			h.log.Warn().Err(merr).Str("idempotency_key", key).Msg("mark idempotency failed")
		}
		respondError(c, h.log, err)
		return
	}

	body, err := json.Marshal(o)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("marshal order: %w", err))
		return
	}
	if err := h.idem.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
		// the order exists; a retry will see IN_PROGRESS rather than a duplicate
		h.log.Warn().Err(err).Str("idempotency_key", key).Str("order_id", o.ID).Msg("mark idempotency done")
	}
	c.Header("Location", "/purchase-orders/"+o.ID)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *handler) writeCreated(c *gin.Context, o *orders.PurchaseOrder) {
	c.Header("Location", "/purchase-orders/"+o.ID)
	c.JSON(http.StatusCreated, o)
}

// replay answers a repeated Idempotency-Key from the stored record.
func (h *handler) replay(c *gin.Context, key string) {
	rec, err := h.idem.Get(c.Request.Context(), key)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("idempotency lookup: %w", err))
		return
	}
	if rec == nil {
		// expired between the conditional put and the read
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_expired"})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "request already completed"})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	case idempotency.StatusFailed:
		// let client retry with a new key
		c.JSON(http.StatusInternalServerError, gin.H{"error": "previous_attempt_failed", "detail": rec.Note})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *handler) listOrders(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > orders.MaxQueryLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "invalid_input",
				"detail": fmt.Sprintf("limit must be between 1 and %d", orders.MaxQueryLimit),
			})
			return
		}
		limit = n
	}

	list, err := h.svc.ListOrders(c.Request.Context(), actor, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) getOrder(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	detail, err := h.svc.GetOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *handler) listApprovals(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	recs, err := h.svc.ListApprovals(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// decide handles POST /purchase-orders/:id/approve and returns the order
// with its updated history.
func (h *handler) decide(c *gin.Context) {
	ctx := c.Request.Context()
	actor, _ := auth.ActorFrom(c)
	id := c.Param("id")

	var req validation.DecisionRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	if _, err := h.svc.Decide(ctx, actor, id, orders.Decision(req.Status), req.Comments); err != nil {
		respondError(c, h.log, err)
		return
	}

	detail, err := h.svc.GetOrder(ctx, actor, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
