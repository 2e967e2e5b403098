package store

import (
	"context"
	"fmt"
	"strings"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const productColumns = `id, seller_id, name, slug, status, description, short_description,
	regular_price, sale_price, price, category_ids, image_ids, created_at, updated_at`

var productOrderColumns = map[string]string{
	"date":  "p.created_at",
	"price": "p.price",
	"title": "p.name",
	"id":    "p.id",
}

// CreateProduct inserts a product and fills its generated fields
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (seller_id, name, slug, status, description, short_description,
			regular_price, sale_price, price, category_ids, image_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	product.Price = product.EffectivePrice()
	return s.q.GetContext(ctx, product, query,
		product.SellerID, product.Name, product.Slug, product.Status, product.Description,
		product.ShortDescription, product.RegularPrice, product.SalePrice, product.Price,
		int64Array(product.CategoryIDs), int64Array(product.ImageIDs))
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.q.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	var products []models.Product
	err = s.q.SelectContext(ctx, &products, query, args...)
	return products, err
}

// UpdateProduct writes every mutable column of product
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	query := `
		UPDATE products
		SET seller_id = $1, name = $2, slug = $3, status = $4, description = $5,
			short_description = $6, regular_price = $7, sale_price = $8, price = $9,
			category_ids = $10, image_ids = $11, updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at`

	product.Price = product.EffectivePrice()
	err := s.q.GetContext(ctx, &product.UpdatedAt, query,
		product.SellerID, product.Name, product.Slug, product.Status, product.Description,
		product.ShortDescription, product.RegularPrice, product.SalePrice, product.Price,
		int64Array(product.CategoryIDs), int64Array(product.ImageIDs), product.ID)
	if err != nil {
		return notFound(err, "product", product.ID)
	}
	return nil
}

// DeleteProduct permanently removes a product with its attributes and terms
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListProducts returns products matching q
func (s *Store) ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, error) {
	where, args := productWhere(q)

	orderBy, ok := productOrderColumns[q.OrderBy]
	if !ok {
		orderBy = productOrderColumns["date"]
	}

	query := "SELECT " + productColumns + " FROM products p WHERE " + where +
		" ORDER BY " + orderBy + " " + sortDirection(q.Order) + ", p.id DESC"
	query, args = appendLimit(query, args, q.Limit, q.Offset)

	products := []models.Product{}
	err := s.q.SelectContext(ctx, &products, s.q.Rebind(query), args...)
	return products, err
}

// CountProducts counts products matching q, ignoring paging
func (s *Store) CountProducts(ctx context.Context, q models.ProductQuery) (int, error) {
	where, args := productWhere(q)

	var count int
	err := s.q.GetContext(ctx, &count, s.q.Rebind("SELECT COUNT(*) FROM products p WHERE "+where), args...)
	return count, err
}

func productWhere(q models.ProductQuery) (string, []interface{}) {
	where := []string{"1=1"}
	var args []interface{}

	if q.SellerID != nil {
		where = append(where, "p.seller_id = ?")
		args = append(args, *q.SellerID)
	}
	if q.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, q.Status)
	}
	if q.CategorySlug != "" {
		where = append(where, "EXISTS (SELECT 1 FROM categories c WHERE c.id = ANY(p.category_ids) AND c.slug = ?)")
		args = append(args, q.CategorySlug)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		where = append(where, "(p.name ILIKE ? OR p.description ILIKE ? OR p.short_description ILIKE ?)")
		args = append(args, like, like, like)
	}
	if q.MinPrice != nil {
		where = append(where, "p.price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		where = append(where, "p.price <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.CreatedSince != nil {
		where = append(where, "p.created_at >= ?")
		args = append(args, *q.CreatedSince)
	}

	return strings.Join(where, " AND "), args
}

// TaxonomyExists reports whether an attribute taxonomy is registered
func (s *Store) TaxonomyExists(ctx context.Context, taxonomy string) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM attribute_taxonomies WHERE taxonomy = $1)", taxonomy)
	return exists, err
}

// FindOrCreateTerm resolves a term by name, creating it when absent
func (s *Store) FindOrCreateTerm(ctx context.Context, taxonomy, name string) (*models.Term, error) {
	query := `
		INSERT INTO terms (taxonomy, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (taxonomy, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, taxonomy, name, slug`

	var term models.Term
	if err := s.q.GetContext(ctx, &term, query, taxonomy, name, models.Slugify(name)); err != nil {
		return nil, err
	}
	return &term, nil
}

// SetProductTerms replaces the product's terms within one taxonomy
func (s *Store) SetProductTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error {
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM product_terms WHERE product_id = $1 AND taxonomy = $2", productID, taxonomy); err != nil {
		return err
	}

	for _, termID := range termIDs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO product_terms (product_id, term_id, taxonomy) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
			productID, termID, taxonomy); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceProductAttributes overwrites the product's attribute set
func (s *Store) ReplaceProductAttributes(ctx context.Context, productID int64, attrs []models.ProductAttribute) error {
	if _, err := s.q.ExecContext(ctx, "DELETE FROM product_attributes WHERE product_id = $1", productID); err != nil {
		return err
	}

	for _, attr := range attrs {
		if _, err := s.q.ExecContext(ctx,
			"INSERT INTO product_attributes (product_id, name, value, is_taxonomy, position) VALUES ($1, $2, $3, $4, $5)",
			productID, attr.Name, attr.Value, attr.IsTaxonomy, attr.Position); err != nil {
			return err
		}
	}
	return nil
}

// GetProductAttributes loads attributes with the term names of taxonomy-backed ones
func (s *Store) GetProductAttributes(ctx context.Context, productID int64) ([]models.ProductAttribute, error) {
	attrs := []models.ProductAttribute{}
	err := s.q.SelectContext(ctx, &attrs,
		"SELECT product_id, name, value, is_taxonomy, position FROM product_attributes WHERE product_id = $1 ORDER BY position, name",
		productID)
	if err != nil {
		return nil, err
	}

	for i := range attrs {
		if !attrs[i].IsTaxonomy {
			continue
		}
		var names []string
		err := s.q.SelectContext(ctx, &names, `
			SELECT t.name FROM product_terms pt
			JOIN terms t ON t.id = pt.term_id
			WHERE pt.product_id = $1 AND pt.taxonomy = $2
			ORDER BY t.name`, productID, attrs[i].Name)
		if err != nil {
			return nil, err
		}
		attrs[i].Options = names
	}

	return attrs, nil
}

func int64Array(a pq.Int64Array) pq.Int64Array {
	if a == nil {
		return pq.Int64Array{}
	}
	return a
}
