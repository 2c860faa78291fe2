// README: Order handlers for create/get/advance. Driver actors are resolved
// to their driver profile before hitting the lifecycle engine.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"antar/internal/modules/driver"
	"antar/internal/modules/order"
	"antar/internal/types"
)

type OrderHandler struct {
	order   *order.Service
	drivers *driver.Service
}

func NewOrderHandler(orderSvc *order.Service, driverSvc *driver.Service) *OrderHandler {
	return &OrderHandler{order: orderSvc, drivers: driverSvc}
}

type createOrderReq struct {
	MerchantID    string      `json:"merchant_id" binding:"required"`
	PaymentMethod string      `json:"payment_method" binding:"required"`
	Subtotal      int64       `json:"subtotal"`
	DeliveryFee   int64       `json:"delivery_fee"`
	ServiceFee    int64       `json:"service_fee"`
	Pickup        types.Point `json:"pickup"`
	Dropoff       types.Point `json:"dropoff"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		Actor:         actor,
		MerchantID:    types.ID(req.MerchantID),
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Subtotal:      req.Subtotal,
		DeliveryFee:   req.DeliveryFee,
		ServiceFee:    req.ServiceFee,
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

type advanceReq struct {
	TargetStatus string `json:"target_status" binding:"required"`
}

func (h *OrderHandler) Advance(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// The lifecycle engine matches driver actors against the assigned driver
	// profile id, so the token's user id must be swapped for it.
	if actor.Is(types.RoleDriver) {
		d, err := h.drivers.GetByUserID(c.Request.Context(), actor.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		actor.ID = d.ID
	}

	o, err := h.order.Advance(c.Request.Context(), order.AdvanceCommand{
		OrderID: types.ID(c.Param("id")),
		Actor:   actor,
		Target:  order.Status(req.TargetStatus),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
