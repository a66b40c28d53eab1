package devserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"courier/internal/codec"
	"courier/internal/domain"
	"courier/internal/logger"
	"courier/internal/policy"
)

// Handler serves the document store, presence, and settlement endpoints.
type Handler struct {
	store    *DocumentStore
	presence *PresenceStore
	log      logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(store *DocumentStore, presence *PresenceStore, log logger.Logger) *Handler {
	return &Handler{store: store, presence: presence, log: log}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, code int, msg string) {
	c.JSON(code, ErrorResponse{Error: msg})
}

const resourcePrefix = "devserver/documents/"

func resourceName(collection, id string) string {
	return resourcePrefix + collection + "/" + id
}

// documentBody is the wire shape of a document read or write.
type documentBody struct {
	Name   string         `json:"name,omitempty"`
	Fields map[string]any `json:"fields"`
}

// GetDocument handles GET /v1/documents/:collection/:id.
func (h *Handler) GetDocument(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	fields, err := h.store.Get(collection, id)
	if err != nil {
		respondError(c, http.StatusNotFound, "document not found")
		return
	}
	c.JSON(http.StatusOK, documentBody{Name: resourceName(collection, id), Fields: fields})
}

// ListDocuments handles GET /v1/documents/:collection.
func (h *Handler) ListDocuments(c *gin.Context) {
	collection := c.Param("collection")

	docs := h.store.List(collection)
	out := make([]documentBody, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentBody{
			Name:   resourceName(collection, doc.ID),
			Fields: doc.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

// SetDocument handles PUT /v1/documents/:collection/:id, a full-document
// write with no mask.
func (h *Handler) SetDocument(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "malformed document body")
		return
	}

	h.store.Set(collection, id, body.Fields)
	c.JSON(http.StatusOK, documentBody{Name: resourceName(collection, id), Fields: body.Fields})
}

// CreateDocument handles POST /v1/documents/:collection, assigning an id.
func (h *Handler) CreateDocument(c *gin.Context) {
	collection := c.Param("collection")

	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "malformed document body")
		return
	}

	id := uuid.New().String()
	h.store.Set(collection, id, body.Fields)
	c.JSON(http.StatusOK, documentBody{Name: resourceName(collection, id), Fields: body.Fields})
}

// PatchDocument handles PATCH /v1/documents/:collection/:id. The update
// mask arrives as repeated updateMask.fieldPaths query parameters; only the
// masked paths are written. An optional precondition on one field's current
// value turns the patch into a conditional write.
func (h *Handler) PatchDocument(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	maskPaths := c.QueryArray("updateMask.fieldPaths")
	if len(maskPaths) == 0 {
		respondError(c, http.StatusBadRequest, "updateMask.fieldPaths is required")
		return
	}

	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "malformed document body")
		return
	}

	var pre *fieldPrecondition
	if path := c.Query("precondition.fieldPath"); path != "" {
		pre = &fieldPrecondition{Path: path, Value: c.Query("precondition.value")}
	}

	err := h.store.Patch(collection, id, body.Fields, maskPaths, pre)
	switch {
	case errors.Is(err, errNotFound):
		respondError(c, http.StatusNotFound, "document not found")
	case errors.Is(err, errPreconditionFailed):
		respondError(c, http.StatusConflict, "precondition failed")
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error())
	default:
		fields, _ := h.store.Get(collection, id)
		c.JSON(http.StatusOK, documentBody{Name: resourceName(collection, id), Fields: fields})
	}
}

// DeleteDocument handles DELETE /v1/documents/:collection/:id.
func (h *Handler) DeleteDocument(c *gin.Context) {
	collection, id := c.Param("collection"), c.Param("id")

	if err := h.store.Delete(collection, id); err != nil {
		respondError(c, http.StatusNotFound, "document not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// presenceRequest is shared by the presence endpoints.
type presenceRequest struct {
	DriverID  string  `json:"driverId" binding:"required"`
	SessionID string  `json:"sessionId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DriverOnline handles POST /api/driver/online.
func (h *Handler) DriverOnline(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "driverId is required")
		return
	}

	sessionID, err := h.presence.Open(c.Request.Context(), req.DriverID, req.Latitude, req.Longitude)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": sessionID})
}

// DriverOffline handles POST /api/driver/offline.
func (h *Handler) DriverOffline(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "driverId is required")
		return
	}

	minutes, err := h.presence.Close(c.Request.Context(), req.DriverID, req.SessionID)
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "onlineMinutes": minutes})
}

// DriverHeartbeat handles POST /api/driver/heartbeat.
func (h *Handler) DriverHeartbeat(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "driverId is required")
		return
	}

	if err := h.presence.Heartbeat(c.Request.Context(), req.DriverID, req.SessionID, req.Latitude, req.Longitude); err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OnlineDrivers handles GET /api/drivers/online?lat&lng&radiusMiles.
func (h *Handler) OnlineDrivers(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	radius, err3 := strconv.ParseFloat(c.DefaultQuery("radiusMiles", "5"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		respondError(c, http.StatusBadRequest, "lat, lng and radiusMiles must be numbers")
		return
	}

	positions, err := h.presence.Near(c.Request.Context(), lat, lng, radius)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	drivers := make([]gin.H, 0, len(positions))
	for _, pos := range positions {
		drivers = append(drivers, gin.H{
			"driverId":      pos.DriverID,
			"latitude":      pos.Lat,
			"longitude":     pos.Lng,
			"distanceMiles": pos.DistanceMiles,
		})
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers, "count": len(drivers)})
}

// cancelOrderRequest mirrors the settlement contract.
type cancelOrderRequest struct {
	OrderID    string `json:"orderId" binding:"required"`
	CustomerID string `json:"customerId"`
	Reason     string `json:"reason"`
}

// CancelOrder handles POST /api/cancel-order. The dev settlement applies
// the policy table amounts verbatim; the real service may differ.
func (h *Handler) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "orderId is required")
		return
	}

	fields, err := h.store.Get("orders", req.OrderID)
	if err != nil {
		respondError(c, http.StatusNotFound, "order not found")
		return
	}

	decoded := codec.DecodeFields(fields)
	order := &domain.Order{
		ID:     req.OrderID,
		Status: domain.OrderStatus(cast.ToString(decoded["status"])),
	}
	if pricing, ok := decoded["pricing"].(map[string]any); ok {
		order.Pricing.Total = cast.ToFloat64(pricing["total"])
	}

	verdict := policy.EvaluateCancellation(order)
	if !verdict.CanCancel {
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": verdict.Reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"cancellationFee":    verdict.Fee,
		"refundAmount":       verdict.RefundAmount,
		"driverCompensation": verdict.DriverCompensation,
		"refundId":           "re_" + uuid.New().String(),
	})
}

// payoutRequest mirrors the settlement contract.
type payoutRequest struct {
	TripID   string  `json:"tripId" binding:"required"`
	DriverID string  `json:"driverId" binding:"required"`
	Amount   float64 `json:"amount"`
}

// ProcessTripPayout handles POST /api/process-trip-payout. The dev
// settlement always succeeds and just logs the payout.
func (h *Handler) ProcessTripPayout(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "tripId and driverId are required")
		return
	}

	h.log.Info("dev payout",
		logger.String("tripId", req.TripID),
		logger.String("driverId", req.DriverID),
		logger.Float64("amount", req.Amount))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
