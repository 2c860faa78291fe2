// README: Wallet handlers; balance, ledger history, withdrawal requests.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"antar/internal/modules/wallet"
	"antar/internal/types"
)

type WalletHandler struct {
	wallet *wallet.Service
}

func NewWalletHandler(walletSvc *wallet.Service) *WalletHandler {
	return &WalletHandler{wallet: walletSvc}
}

func (h *WalletHandler) Balance(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	w, err := h.wallet.Balance(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": w.UserID, "balance": w.Balance})
}

func (h *WalletHandler) Ledger(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.wallet.Ledger(c.Request.Context(), actor.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		item := gin.H{
			"id":         e.ID,
			"amount":     e.Amount,
			"reason":     e.Reason,
			"created_at": e.CreatedAt,
		}
		if e.RefID != nil {
			item["ref_id"] = *e.RefID
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

type withdrawReq struct {
	Amount        int64  `json:"amount" binding:"required"`
	BankName      string `json:"bank_name" binding:"required"`
	BankAccount   string `json:"bank_account" binding:"required"`
	AccountHolder string `json:"account_holder"`
}

func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req withdrawReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	w, err := h.wallet.RequestWithdrawal(c.Request.Context(), wallet.WithdrawCommand{
		Actor:         actor,
		Amount:        req.Amount,
		BankName:      req.BankName,
		BankAccount:   req.BankAccount,
		AccountHolder: req.AccountHolder,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toWithdrawalResponse(w))
}

func (h *WalletHandler) GetWithdrawal(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	w, err := h.wallet.Withdrawal(c.Request.Context(), actor, types.ID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWithdrawalResponse(w))
}

func toWithdrawalResponse(w *wallet.Withdrawal) gin.H {
	resp := gin.H{
		"id":           w.ID,
		"amount":       w.Amount,
		"status":       w.Status,
		"bank_name":    w.BankName,
		"bank_account": w.BankAccount,
		"created_at":   w.CreatedAt,
	}
	if w.ProofURL != nil {
		resp["proof_url"] = *w.ProofURL
	}
	if w.RejectionReason != nil {
		resp["rejection_reason"] = *w.RejectionReason
	}
	if w.ResolvedAt != nil {
		resp["resolved_at"] = *w.ResolvedAt
	}
	return resp
}
