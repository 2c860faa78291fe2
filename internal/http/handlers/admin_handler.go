// README: Admin handlers; withdrawal resolution and driver application review.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"antar/internal/modules/driver"
	"antar/internal/modules/wallet"
	"antar/internal/types"
)

type AdminHandler struct {
	wallet  *wallet.Service
	drivers *driver.Service
}

func NewAdminHandler(walletSvc *wallet.Service, driverSvc *driver.Service) *AdminHandler {
	return &AdminHandler{wallet: walletSvc, drivers: driverSvc}
}

func (h *AdminHandler) PendingWithdrawals(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	items, err := h.wallet.PendingWithdrawals(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, w := range items {
		out = append(out, toWithdrawalResponse(w))
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": out})
}

type resolveReq struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
	ProofURL string `json:"proof_url"`
}

func (h *AdminHandler) ResolveWithdrawal(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		return
	}
	w, err := h.wallet.Resolve(c.Request.Context(), wallet.ResolveCommand{
		Actor:        actor,
		WithdrawalID: types.ID(c.Param("id")),
		Approve:      req.Decision == "approve",
		ProofURL:     req.ProofURL,
		Reason:       req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWithdrawalResponse(w))
}

type reviewReq struct {
	Decision string `json:"decision" binding:"required"`
}

func (h *AdminHandler) ReviewDriver(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		return
	}
	if err := h.drivers.Review(c.Request.Context(), actor, types.ID(c.Param("id")), req.Decision == "approve"); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewed": true})
}
