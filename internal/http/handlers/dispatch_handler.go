// README: Dispatch handlers; drivers browse nearby ready orders and claim one.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"antar/internal/modules/dispatch"
	"antar/internal/modules/driver"
	"antar/internal/types"
)

type DispatchHandler struct {
	dispatch *dispatch.Service
	drivers  *driver.Service
}

func NewDispatchHandler(dispatchSvc *dispatch.Service, driverSvc *driver.Service) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatchSvc, drivers: driverSvc}
}

func (h *DispatchHandler) resolveDriver(c *gin.Context) (*driver.Driver, bool) {
	actor, ok := mustActor(c)
	if !ok {
		return nil, false
	}
	d, err := h.drivers.GetByUserID(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return d, true
}

type availableOrderResp struct {
	Order      orderResponse `json:"order"`
	DistanceKm float64       `json:"distance_km"`
}

func (h *DispatchHandler) ListAvailable(c *gin.Context) {
	d, ok := h.resolveDriver(c)
	if !ok {
		return
	}

	loc := d.Location
	if lat, err := strconv.ParseFloat(c.Query("lat"), 64); err == nil {
		loc.Lat = lat
	}
	if lng, err := strconv.ParseFloat(c.Query("lng"), 64); err == nil {
		loc.Lng = lng
	}
	radiusKm, _ := strconv.ParseFloat(c.Query("radius_km"), 64)

	items, err := h.dispatch.ListAvailable(c.Request.Context(), loc, radiusKm)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]availableOrderResp, 0, len(items))
	for _, it := range items {
		out = append(out, availableOrderResp{
			Order:      toOrderResponse(it.Order),
			DistanceKm: it.DistanceKm,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *DispatchHandler) Claim(c *gin.Context) {
	d, ok := h.resolveDriver(c)
	if !ok {
		return
	}
	o, err := h.dispatch.Claim(c.Request.Context(), types.ID(c.Param("id")), d.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}
