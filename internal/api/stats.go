package api

import (
	"net/http"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/period"

	"github.com/gin-gonic/gin"
)

func (h *Handler) userStats(c *gin.Context) {
	stats, err := h.stats.SellerStats(c.Request.Context(), principal(c).UserID, periodParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *Handler) platformStats(c *gin.Context) {
	stats, err := h.stats.PlatformStats(c.Request.Context(), periodParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

func (h *Handler) listSellers(c *gin.Context) {
	sellers, err := h.stats.AllSellersWithStats(c.Request.Context(), periodParam(c), h.paging.page(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sellers)
}

func (h *Handler) sellerDetail(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := h.stats.SellerDetail(c.Request.Context(), id, periodParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, detail)
}

type commissionReport struct {
	Commissions []models.Commission `json:"commissions"`
	Total       string              `json:"total"`
	Period      period.Period       `json:"period"`
}

func (h *Handler) listCommissions(c *gin.Context) {
	var q models.CommissionQuery
	var err error
	if q.SellerID, err = int64Query(c, "seller_id"); err != nil {
		respondError(c, err)
		return
	}
	if q.BuyerID, err = int64Query(c, "buyer_id"); err != nil {
		respondError(c, err)
		return
	}
	if q.OrderID, err = int64Query(c, "order_id"); err != nil {
		respondError(c, err)
		return
	}
	q.Status = c.Query("status")
	if q.Status != "" && models.CommissionSourceStatuses(q.Status) == nil {
		respondError(c, apperr.Validation("invalid_status", "Invalid commission status."))
		return
	}

	p := periodParam(c)
	if q.Since, err = period.Since(p, h.now()); err != nil {
		respondError(c, apperr.Validation("invalid_period", "Invalid period."))
		return
	}
	q.Limit, q.Offset = h.paging.limits(c)
	q.OrderBy = c.DefaultQuery("orderby", "created_at")
	q.Order = sortOrder(c)

	entries, err := h.commissions.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.commissions.Sum(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, commissionReport{
		Commissions: entries,
		Total:       total.StringFixed(2),
		Period:      p,
	})
}
