// README: Driver self-service handlers (availability toggle, live location).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"antar/internal/modules/driver"
	"antar/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
}

func NewDriverHandler(driverSvc *driver.Service) *DriverHandler {
	return &DriverHandler{drivers: driverSvc}
}

func (h *DriverHandler) resolve(c *gin.Context) (*driver.Driver, bool) {
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

func (h *DriverHandler) Me(c *gin.Context) {
	d, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            d.ID,
		"status":        d.Status,
		"is_active":     d.IsActive,
		"vehicle_type":  d.VehicleType,
		"vehicle_plate": d.VehiclePlate,
		"cod_owed":      d.CODOwed,
	})
}

type availabilityReq struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	d, ok := h.resolve(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.drivers.SetAvailability(c.Request.Context(), d.ID, *req.Active); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	d, ok := h.resolve(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.drivers.UpdateLocation(c.Request.Context(), d.ID, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
