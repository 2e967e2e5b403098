package api

import (
	"math"
	"strconv"
	"strings"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/period"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// maxOffset caps how deep a page request can reach
const maxOffset = math.MaxInt32

// Paging bounds list endpoints
type Paging struct {
	DefaultPerPage int
	MaxPerPage     int
}

func (pg Paging) limits(c *gin.Context) (limit, offset int) {
	limit = pg.DefaultPerPage
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil && n > 0 {
		limit = n
	}
	if pg.MaxPerPage > 0 && limit > pg.MaxPerPage {
		limit = pg.MaxPerPage
	}

	page := 1
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 1 {
		page = n
	}
	if limit > 0 && page > maxOffset/limit {
		page = maxOffset / limit
	}
	return limit, (page - 1) * limit
}

func (pg Paging) page(c *gin.Context) models.Page {
	limit, offset := pg.limits(c)
	return models.Page{Limit: limit, Offset: offset}
}

func sortOrder(c *gin.Context) string {
	if strings.EqualFold(c.Query("order"), "asc") {
		return "asc"
	}
	return "desc"
}

func periodParam(c *gin.Context) period.Period {
	return period.FromQuery(c.Query("period"))
}

func priceParam(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.Validation("invalid_"+name, "Invalid "+name+".")
	}
	return &d, nil
}

func (h *Handler) productQuery(c *gin.Context) (models.ProductQuery, error) {
	limit, offset := h.paging.limits(c)
	q := models.ProductQuery{
		CategorySlug: c.Query("category"),
		Search:       strings.TrimSpace(c.Query("search")),
		OrderBy:      c.DefaultQuery("orderby", "date"),
		Order:        sortOrder(c),
		Limit:        limit,
		Offset:       offset,
	}

	var err error
	if q.MinPrice, err = priceParam(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = priceParam(c, "max_price"); err != nil {
		return q, err
	}
	return q, nil
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid_id", "Invalid "+name+".")
	}
	return id, nil
}

func int64Query(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Validation("invalid_"+name, "Invalid "+name+".")
	}
	return n, nil
}
