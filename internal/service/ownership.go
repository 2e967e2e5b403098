package service

import (
	"context"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
)

// OwnershipFilter narrows listings and guards mutations to what a principal
// may see or change
type OwnershipFilter struct {
	repo store.Repository
}

// NewOwnershipFilter creates a new ownership filter
func NewOwnershipFilter(repo store.Repository) *OwnershipFilter {
	return &OwnershipFilter{repo: repo}
}

// ScopeProducts restricts q to the principal's own products unless the
// principal is an administrator
func (f *OwnershipFilter) ScopeProducts(p models.Principal, q models.ProductQuery) (models.ProductQuery, error) {
	if err := requireAuth(p); err != nil {
		return q, err
	}
	if p.IsAdmin {
		return q, nil
	}

	sellerID := p.UserID
	q.SellerID = &sellerID
	return q, nil
}

// ScopeOrders restricts q to orders the principal bought or sold into.
// An empty visible set stays empty.
func (f *OwnershipFilter) ScopeOrders(ctx context.Context, p models.Principal, q models.OrderQuery) (models.OrderQuery, error) {
	if err := requireAuth(p); err != nil {
		return q, err
	}
	if p.IsAdmin {
		q.Restricted = false
		q.IDs = nil
		return q, nil
	}

	ids, err := f.visibleOrderIDs(ctx, p.UserID, "all")
	if err != nil {
		return q, err
	}
	q.Restricted = true
	q.IDs = ids
	return q, nil
}

// visibleOrderIDs resolves the order ids of userID in the given role,
// de-duplicated and in first-seen order
func (f *OwnershipFilter) visibleOrderIDs(ctx context.Context, userID int64, role string) ([]int64, error) {
	var sources [][]int64

	if role == "buyer" || role == "all" {
		ids, err := f.repo.BuyerOrderIDs(ctx, userID)
		if err != nil {
			return nil, storageErr("Failed to load buyer orders.", err)
		}
		sources = append(sources, ids)
	}
	if role == "seller" || role == "all" {
		ids, err := f.repo.SellerOrderIDs(ctx, userID)
		if err != nil {
			return nil, storageErr("Failed to load seller orders.", err)
		}
		sources = append(sources, ids)
	}

	seen := make(map[int64]struct{})
	result := []int64{}
	for _, ids := range sources {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	return result, nil
}

// CanMutateProduct permits the product's seller and administrators
func (f *OwnershipFilter) CanMutateProduct(p models.Principal, product *models.Product) error {
	if err := requireAuth(p); err != nil {
		return err
	}
	if p.IsAdmin || product.OwnedBy(p.UserID) {
		return nil
	}
	return apperr.Forbidden("not_product_owner", "You do not have permission to modify this product.")
}

// CanViewOrder permits the buyer, any seller of a line and administrators
func (f *OwnershipFilter) CanViewOrder(p models.Principal, order *models.Order) error {
	if err := requireAuth(p); err != nil {
		return err
	}
	if p.IsAdmin || order.CustomerID == p.UserID || order.HasSeller(p.UserID) {
		return nil
	}
	return apperr.Forbidden("not_order_party", "You do not have permission to view this order.")
}
