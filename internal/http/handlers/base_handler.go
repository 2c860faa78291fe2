// README: Shared handler utilities (JSON binding, error to status mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"antar/internal/http/middleware"
	"antar/internal/logger"
	"antar/internal/modules/dispatch"
	"antar/internal/modules/driver"
	"antar/internal/modules/order"
	"antar/internal/modules/wallet"
	"antar/internal/types"
)

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromCtx(c.Request.Context()).Error("request failed",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrNotAuthorized),
		errors.Is(err, driver.ErrNotAuthorized),
		errors.Is(err, wallet.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, dispatch.ErrAlreadyClaimed),
		errors.Is(err, wallet.ErrAlreadyResolved),
		errors.Is(err, driver.ErrAlreadyReviewed):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrDriverUnavailable),
		errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrReasonRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func mustActor(c *gin.Context) (types.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return actor, ok
}

type orderResponse struct {
	ID            types.ID            `json:"id"`
	CustomerID    types.ID            `json:"customer_id"`
	MerchantID    types.ID            `json:"merchant_id"`
	DriverID      *types.ID           `json:"driver_id,omitempty"`
	Status        order.Status        `json:"status"`
	StatusVersion int                 `json:"status_version"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	Subtotal      int64               `json:"subtotal"`
	DeliveryFee   int64               `json:"delivery_fee"`
	ServiceFee    int64               `json:"service_fee"`
	TotalAmount   int64               `json:"total_amount"`
	Pickup        types.Point         `json:"pickup"`
	Dropoff       types.Point         `json:"dropoff"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		MerchantID:    o.MerchantID,
		DriverID:      o.DriverID,
		Status:        o.Status,
		StatusVersion: o.StatusVersion,
		PaymentMethod: o.PaymentMethod,
		Subtotal:      o.Subtotal,
		DeliveryFee:   o.DeliveryFee,
		ServiceFee:    o.ServiceFee,
		TotalAmount:   o.TotalAmount,
		Pickup:        o.Pickup,
		Dropoff:       o.Dropoff,
	}
}
