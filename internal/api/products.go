package api

import (
	"net/http"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProducts(c *gin.Context) {
	q, err := h.productQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.products.ListPublished(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	product, err := h.products.GetPublished(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) listUserProducts(c *gin.Context) {
	q, err := h.productQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	q.Status = c.Query("status")
	if q.Status != "" && !models.ValidProductStatus(q.Status) {
		respondError(c, apperr.Validation("invalid_status", "Invalid product status."))
		return
	}

	products, err := h.products.ListForPrincipal(c.Request.Context(), principal(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, products)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid_body", "Invalid request body."))
		return
	}

	product, err := h.products.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("invalid_body", "Invalid request body."))
		return
	}

	product, err := h.products.Update(c.Request.Context(), principal(c), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.products.Delete(c.Request.Context(), principal(c), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}
