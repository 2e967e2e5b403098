package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductService is the seller-facing catalog adapter
type ProductService struct {
	repo   store.Repository
	filter *OwnershipFilter
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo store.Repository, filter *OwnershipFilter) *ProductService {
	return &ProductService{
		repo:   repo,
		filter: filter,
		logger: util.Named("products"),
	}
}

// ProductInput carries the writable product fields. Nil fields are left
// unchanged on update.
type ProductInput struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	ShortDescription *string          `json:"short_description"`
	RegularPrice     *decimal.Decimal `json:"regular_price"`
	SalePrice        *decimal.Decimal `json:"sale_price"`
	Status           *string          `json:"status"`
	CategoryIDs      []int64          `json:"categories"`
	ImageIDs         []int64          `json:"images"`
	SellerID         *int64           `json:"seller_id"`
	Attributes       AttributeList    `json:"attributes"`
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Pages    int              `json:"pages"`
}

// Create lists a new product attributed to the principal, or to the seller
// an administrator names
func (s *ProductService) Create(ctx context.Context, p models.Principal, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create", attribute.Int64("user_id", p.UserID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAuth(p); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		err = apperr.Validation("missing_name", "Product name is required.")
		return nil, err
	}
	if in.RegularPrice == nil {
		err = apperr.Validation("missing_price", "Regular price is required.")
		return nil, err
	}

	product := &models.Product{Status: models.ProductStatusPublished}
	if p.UserID > 0 {
		sellerID := p.UserID
		product.SellerID = &sellerID
	}
	if in.SellerID != nil && p.IsAdmin {
		if err = s.checkSeller(ctx, *in.SellerID); err != nil {
			return nil, err
		}
		sellerID := *in.SellerID
		product.SellerID = &sellerID
	}
	if err = applyProductFields(product, in); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(repo store.Repository) error {
		if err := repo.CreateProduct(ctx, product); err != nil {
			return storageErr("Failed to create product.", err)
		}
		if in.Attributes != nil {
			attrs, err := s.applyAttributes(ctx, repo, product.ID, in.Attributes)
			if err != nil {
				return err
			}
			product.Attributes = attrs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.Int64p("seller_id", product.SellerID))
	return product, nil
}

// checkSeller rejects attribution to an account that does not exist
func (s *ProductService) checkSeller(ctx context.Context, sellerID int64) error {
	if sellerID <= 0 {
		return apperr.Validation("invalid_seller_id", "Invalid seller ID.")
	}
	if _, err := s.repo.GetUser(ctx, sellerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Validation("invalid_seller_id", fmt.Sprintf("Seller %d does not exist.", sellerID))
		}
		return storageErr("Failed to load seller.", err)
	}
	return nil
}

// Update merges the supplied fields into an existing product
func (s *ProductService) Update(ctx context.Context, p models.Principal, id int64, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update", attribute.Int64("product_id", id))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAuth(p); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		err = lookupErr("product_not_found", "Product", err)
		return nil, err
	}
	if err = s.filter.CanMutateProduct(p, product); err != nil {
		return nil, err
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		err = apperr.Validation("missing_name", "Product name cannot be empty.")
		return nil, err
	}
	if in.SellerID != nil && p.IsAdmin {
		if err = s.checkSeller(ctx, *in.SellerID); err != nil {
			return nil, err
		}
		sellerID := *in.SellerID
		product.SellerID = &sellerID
	}
	if err = applyProductFields(product, in); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(repo store.Repository) error {
		if err := repo.UpdateProduct(ctx, product); err != nil {
			return lookupErr("product_not_found", "Product", err)
		}
		if in.Attributes != nil {
			attrs, err := s.applyAttributes(ctx, repo, product.ID, in.Attributes)
			if err != nil {
				return err
			}
			product.Attributes = attrs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.Int64("user_id", p.UserID))
	return product, nil
}

// Delete permanently removes a product
func (s *ProductService) Delete(ctx context.Context, p models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.Delete", attribute.Int64("product_id", id))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAuth(p); err != nil {
		return err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		err = lookupErr("product_not_found", "Product", err)
		return err
	}
	if err = s.filter.CanMutateProduct(p, product); err != nil {
		return err
	}

	if err = s.repo.DeleteProduct(ctx, id); err != nil {
		err = lookupErr("product_not_found", "Product", err)
		return err
	}

	util.ProductsDeletedTotal.Inc()
	s.logger.Info("Product deleted", zap.Int64("product_id", id), zap.Int64("user_id", p.UserID))
	return nil
}

// ListForSeller returns a seller's products in any status unless q names one
func (s *ProductService) ListForSeller(ctx context.Context, sellerID int64, q models.ProductQuery) ([]models.Product, error) {
	q.SellerID = &sellerID
	products, err := s.repo.ListProducts(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to list products.", err)
	}
	return products, nil
}

// ListForPrincipal returns the products the principal may manage
func (s *ProductService) ListForPrincipal(ctx context.Context, p models.Principal, q models.ProductQuery) ([]models.Product, error) {
	q, err := s.filter.ScopeProducts(p, q)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to list products.", err)
	}
	return products, nil
}

// ListPublished pages through the public storefront
func (s *ProductService) ListPublished(ctx context.Context, q models.ProductQuery) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListPublished")
	defer span.End()

	q.Status = models.ProductStatusPublished

	products, err := s.repo.ListProducts(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to list products.", err)
	}
	total, err := s.repo.CountProducts(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to count products.", err)
	}

	pages := 1
	if q.Limit > 0 {
		pages = (total + q.Limit - 1) / q.Limit
	}
	return &ProductPage{Products: products, Total: total, Pages: pages}, nil
}

// GetPublished returns a storefront product with its attributes
func (s *ProductService) GetPublished(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, lookupErr("product_not_found", "Product", err)
	}
	if product.Status != models.ProductStatusPublished {
		return nil, apperr.NotFound("product_not_found", "Product not found.")
	}

	product.Attributes, err = s.repo.GetProductAttributes(ctx, id)
	if err != nil {
		return nil, storageErr("Failed to load product attributes.", err)
	}
	return product, nil
}

func applyProductFields(product *models.Product, in ProductInput) error {
	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
		product.Slug = models.Slugify(product.Name)
	}
	if in.Description != nil {
		product.Description = *in.Description
	}
	if in.ShortDescription != nil {
		product.ShortDescription = *in.ShortDescription
	}
	if in.RegularPrice != nil {
		if in.RegularPrice.IsNegative() {
			return apperr.Validation("invalid_price", "Regular price cannot be negative.")
		}
		product.RegularPrice = *in.RegularPrice
	}
	if in.SalePrice != nil {
		if in.SalePrice.IsNegative() {
			return apperr.Validation("invalid_price", "Sale price cannot be negative.")
		}
		product.SalePrice = decimal.NewNullDecimal(*in.SalePrice)
	}
	if in.Status != nil {
		if !models.ValidProductStatus(*in.Status) {
			return apperr.Validation("invalid_status", fmt.Sprintf("Unknown product status %q.", *in.Status))
		}
		product.Status = *in.Status
	}
	if in.CategoryIDs != nil {
		product.CategoryIDs = pq.Int64Array(in.CategoryIDs)
	}
	if in.ImageIDs != nil {
		product.ImageIDs = pq.Int64Array(in.ImageIDs)
	}
	product.Price = product.EffectivePrice()
	return nil
}

// applyAttributes replaces the product's attribute set. Names backed by a
// registered taxonomy are stored as terms; the rest as comma-joined text.
func (s *ProductService) applyAttributes(ctx context.Context, repo store.Repository, productID int64, attrs AttributeList) ([]models.ProductAttribute, error) {
	previous, err := repo.GetProductAttributes(ctx, productID)
	if err != nil {
		return nil, storageErr("Failed to load product attributes.", err)
	}

	stored := []models.ProductAttribute{}
	index := make(map[string]int)
	for _, attr := range attrs {
		name := strings.TrimSpace(attr.Name)
		if name == "" || len(attr.Options) == 0 {
			continue
		}

		taxonomy := models.TaxonomyName(name)
		isTaxonomy, err := repo.TaxonomyExists(ctx, taxonomy)
		if err != nil {
			return nil, storageErr("Failed to resolve attribute taxonomy.", err)
		}

		var row models.ProductAttribute
		var key string
		if isTaxonomy {
			termIDs := make([]int64, 0, len(attr.Options))
			for _, option := range attr.Options {
				term, err := repo.FindOrCreateTerm(ctx, taxonomy, option)
				if err != nil {
					return nil, storageErr("Failed to resolve attribute term.", err)
				}
				termIDs = append(termIDs, term.ID)
			}
			if err := repo.SetProductTerms(ctx, productID, taxonomy, termIDs); err != nil {
				return nil, storageErr("Failed to link attribute terms.", err)
			}
			row = models.ProductAttribute{Name: taxonomy, IsTaxonomy: true, Options: attr.Options}
			key = taxonomy
		} else {
			row = models.ProductAttribute{Name: name, Value: strings.Join(attr.Options, ", ")}
			key = models.Slugify(name)
		}
		row.ProductID = productID

		if i, ok := index[key]; ok {
			row.Position = stored[i].Position
			stored[i] = row
			continue
		}
		row.Position = len(stored)
		index[key] = len(stored)
		stored = append(stored, row)
	}

	for _, old := range previous {
		if _, kept := index[old.Name]; old.IsTaxonomy && !kept {
			if err := repo.SetProductTerms(ctx, productID, old.Name, nil); err != nil {
				return nil, storageErr("Failed to unlink attribute terms.", err)
			}
		}
	}

	if err := repo.ReplaceProductAttributes(ctx, productID, stored); err != nil {
		return nil, storageErr("Failed to save product attributes.", err)
	}
	return stored, nil
}
