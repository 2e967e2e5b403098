package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace-service/internal/events"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory store.Repository. WithTx restores the previous
// state when fn fails.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	inTx   bool
	now    func() time.Time

	products     map[int64]models.Product
	taxonomies   map[string]bool
	terms        map[string]map[string]models.Term
	productTerms map[int64]map[string][]int64
	attributes   map[int64][]models.ProductAttribute
	orders       map[int64]models.Order
	commissions  []models.Commission
	users        map[int64]models.User
	processed    map[string]bool

	failInsertCommission error
}

var _ store.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	r := &fakeRepo{
		now:          time.Now,
		products:     map[int64]models.Product{},
		taxonomies:   map[string]bool{},
		terms:        map[string]map[string]models.Term{},
		productTerms: map[int64]map[string][]int64{},
		attributes:   map[int64][]models.ProductAttribute{},
		orders:       map[int64]models.Order{},
		users:        map[int64]models.User{},
		processed:    map[string]bool{},
		nextID:       100,
	}
	for _, tax := range []string{"pa_pole_diameter", "pa_pole_material", "pa_grip_type", "pa_pole_height", "pa_mounting_type"} {
		r.taxonomies[tax] = true
	}
	return r
}

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

type fakeState struct {
	nextID       int64
	products     map[int64]models.Product
	terms        map[string]map[string]models.Term
	productTerms map[int64]map[string][]int64
	attributes   map[int64][]models.ProductAttribute
	orders       map[int64]models.Order
	commissions  []models.Commission
	processed    map[string]bool
}

func (r *fakeRepo) snapshot() fakeState {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := fakeState{
		nextID:       r.nextID,
		products:     map[int64]models.Product{},
		terms:        map[string]map[string]models.Term{},
		productTerms: map[int64]map[string][]int64{},
		attributes:   map[int64][]models.ProductAttribute{},
		orders:       map[int64]models.Order{},
		commissions:  append([]models.Commission(nil), r.commissions...),
		processed:    map[string]bool{},
	}
	for k, v := range r.products {
		s.products[k] = v
	}
	for tax, byName := range r.terms {
		s.terms[tax] = map[string]models.Term{}
		for name, term := range byName {
			s.terms[tax][name] = term
		}
	}
	for pid, byTax := range r.productTerms {
		s.productTerms[pid] = map[string][]int64{}
		for tax, ids := range byTax {
			s.productTerms[pid][tax] = append([]int64(nil), ids...)
		}
	}
	for k, v := range r.attributes {
		s.attributes[k] = append([]models.ProductAttribute(nil), v...)
	}
	for k, v := range r.orders {
		v.Items = append([]models.OrderItem(nil), v.Items...)
		s.orders[k] = v
	}
	for k, v := range r.processed {
		s.processed[k] = v
	}
	return s
}

func (r *fakeRepo) restore(s fakeState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID = s.nextID
	r.products = s.products
	r.terms = s.terms
	r.productTerms = s.productTerms
	r.attributes = s.attributes
	r.orders = s.orders
	r.commissions = s.commissions
	r.processed = s.processed
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	saved := r.snapshot()
	r.inTx = true
	err := fn(r)
	r.inTx = false
	if err != nil {
		r.restore(saved)
	}
	return err
}

func notFoundErr(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
}

func (r *fakeRepo) CreateProduct(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = r.id()
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt
	p.Price = p.EffectivePrice()
	stored := *p
	stored.Attributes = nil
	r.products[p.ID] = stored
	return nil
}

func (r *fakeRepo) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, notFoundErr("product", id)
	}
	return &p, nil
}

func (r *fakeRepo) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []models.Product
	seen := map[int64]bool{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok && !seen[id] {
			seen[id] = true
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *fakeRepo) UpdateProduct(ctx context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return notFoundErr("product", p.ID)
	}
	p.UpdatedAt = r.now()
	p.Price = p.EffectivePrice()
	stored := *p
	stored.Attributes = nil
	r.products[p.ID] = stored
	return nil
}

func (r *fakeRepo) DeleteProduct(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return notFoundErr("product", id)
	}
	delete(r.products, id)
	delete(r.attributes, id)
	delete(r.productTerms, id)
	return nil
}

func (r *fakeRepo) matchProducts(q models.ProductQuery) []models.Product {
	var result []models.Product
	for _, p := range r.products {
		if q.SellerID != nil && (p.SellerID == nil || *p.SellerID != *q.SellerID) {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(q.Search)) {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		if q.CreatedSince != nil && p.CreatedAt.Before(*q.CreatedSince) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *fakeRepo) ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.Product{}, page(r.matchProducts(q), q.Limit, q.Offset)...), nil
}

func (r *fakeRepo) CountProducts(ctx context.Context, q models.ProductQuery) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.matchProducts(q)), nil
}

func (r *fakeRepo) TaxonomyExists(ctx context.Context, taxonomy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.taxonomies[taxonomy], nil
}

func (r *fakeRepo) FindOrCreateTerm(ctx context.Context, taxonomy, name string) (*models.Term, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terms[taxonomy] == nil {
		r.terms[taxonomy] = map[string]models.Term{}
	}
	if term, ok := r.terms[taxonomy][name]; ok {
		return &term, nil
	}
	term := models.Term{ID: r.id(), Taxonomy: taxonomy, Name: name, Slug: models.Slugify(name)}
	r.terms[taxonomy][name] = term
	return &term, nil
}

func (r *fakeRepo) SetProductTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.productTerms[productID] == nil {
		r.productTerms[productID] = map[string][]int64{}
	}
	if len(termIDs) == 0 {
		delete(r.productTerms[productID], taxonomy)
		return nil
	}
	r.productTerms[productID][taxonomy] = append([]int64(nil), termIDs...)
	return nil
}

func (r *fakeRepo) ReplaceProductAttributes(ctx context.Context, productID int64, attrs []models.ProductAttribute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]models.ProductAttribute, len(attrs))
	for i, a := range attrs {
		a.Options = nil
		stored[i] = a
	}
	r.attributes[productID] = stored
	return nil
}

func (r *fakeRepo) GetProductAttributes(ctx context.Context, productID int64) ([]models.ProductAttribute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs := append([]models.ProductAttribute{}, r.attributes[productID]...)
	for i := range attrs {
		if !attrs[i].IsTaxonomy {
			continue
		}
		var names []string
		for _, termID := range r.productTerms[productID][attrs[i].Name] {
			for _, term := range r.terms[attrs[i].Name] {
				if term.ID == termID {
					names = append(names, term.Name)
				}
			}
		}
		sort.Strings(names)
		attrs[i].Options = names
	}
	return attrs, nil
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order.ID = r.id()
	order.CreatedAt = r.now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = r.id()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	r.orders[order.ID] = stored
	return nil
}

func (r *fakeRepo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, notFoundErr("order", id)
	}
	o.Items = append([]models.OrderItem{}, o.Items...)
	return &o, nil
}

func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return notFoundErr("order", id)
	}
	o.Status = status
	o.UpdatedAt = r.now()
	r.orders[id] = o
	return nil
}

func (r *fakeRepo) BuyerOrderIDs(ctx context.Context, userID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := []int64{}
	for id, o := range r.orders {
		if o.CustomerID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeRepo) SellerOrderIDs(ctx context.Context, userID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := []int64{}
	for id, o := range r.orders {
		if o.HasSeller(userID) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeRepo) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []models.Order{}
	if q.Restricted && len(q.IDs) == 0 {
		return result, nil
	}
	allowed := map[int64]bool{}
	for _, id := range q.IDs {
		allowed[id] = true
	}
	for id, o := range r.orders {
		if q.Restricted && !allowed[id] {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		o.Items = append([]models.OrderItem{}, o.Items...)
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return page(result, q.Limit, q.Offset), nil
}

func (r *fakeRepo) InsertCommission(ctx context.Context, c *models.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failInsertCommission != nil {
		return r.failInsertCommission
	}
	for _, existing := range r.commissions {
		if existing.OrderID == c.OrderID && existing.ProductID == c.ProductID {
			return fmt.Errorf("commission for order %d product %d: %w", c.OrderID, c.ProductID, store.ErrDuplicate)
		}
	}
	c.ID = r.id()
	c.CreatedAt = r.now()
	c.UpdatedAt = c.CreatedAt
	r.commissions = append(r.commissions, *c)
	return nil
}

func (r *fakeRepo) UpdateCommissionStatus(ctx context.Context, orderID int64, status string, from []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for i := range r.commissions {
		c := &r.commissions[i]
		if c.OrderID != orderID {
			continue
		}
		for _, f := range from {
			if c.Status == f {
				c.Status = status
				c.UpdatedAt = r.now()
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) matchCommissions(q models.CommissionQuery) []models.Commission {
	var result []models.Commission
	for _, c := range r.commissions {
		if q.OrderID > 0 && c.OrderID != q.OrderID {
			continue
		}
		if q.SellerID > 0 && c.SellerID != q.SellerID {
			continue
		}
		if q.BuyerID > 0 && c.BuyerID != q.BuyerID {
			continue
		}
		if q.Status != "" && c.Status != q.Status {
			continue
		}
		if q.Since != nil && c.CreatedAt.Before(*q.Since) {
			continue
		}
		if q.OrderCreatedSince != nil {
			order, ok := r.orders[c.OrderID]
			if !ok || order.CreatedAt.Before(*q.OrderCreatedSince) {
				continue
			}
		}
		result = append(result, c)
	}
	return result
}

func (r *fakeRepo) SumCommissions(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := decimal.Zero
	for _, c := range r.matchCommissions(q) {
		total = total.Add(c.Amount)
	}
	return total, nil
}

func (r *fakeRepo) ListCommissions(ctx context.Context, q models.CommissionQuery) ([]models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := r.matchCommissions(q)
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return append([]models.Commission{}, page(result, q.Limit, q.Offset)...), nil
}

func (r *fakeRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, notFoundErr("user", id)
	}
	return &u, nil
}

func (r *fakeRepo) ListSellers(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := []models.User{}
	for _, u := range r.users {
		if !u.IsAdmin {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeRepo) completedOrders(since *time.Time) []models.Order {
	var result []models.Order
	for _, o := range r.orders {
		if o.Status != models.OrderStatusCompleted {
			continue
		}
		if since != nil && o.CreatedAt.Before(*since) {
			continue
		}
		result = append(result, o)
	}
	return result
}

func (r *fakeRepo) SellerSales(ctx context.Context, sellerID int64, since *time.Time) (models.SalesSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := models.SalesSummary{TotalSales: decimal.Zero}
	for _, o := range r.completedOrders(since) {
		if !o.HasSeller(sellerID) {
			continue
		}
		summary.OrderCount++
		for _, item := range o.Items {
			if item.SellerID != nil && *item.SellerID == sellerID {
				summary.TotalSales = summary.TotalSales.Add(item.Total)
			}
		}
	}
	return summary, nil
}

func (r *fakeRepo) SellerCompletedOrders(ctx context.Context, sellerID int64) (models.OrderSpan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var span models.OrderSpan
	for _, o := range r.completedOrders(nil) {
		if !o.HasSeller(sellerID) {
			continue
		}
		span.Count++
		created := o.CreatedAt
		if span.FirstOrder == nil || created.Before(*span.FirstOrder) {
			span.FirstOrder = &created
		}
	}
	return span, nil
}

func (r *fakeRepo) PlatformSales(ctx context.Context, since *time.Time) (models.PlatformSales, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sales := models.PlatformSales{TotalSales: decimal.Zero}
	sellers := map[int64]bool{}
	for _, o := range r.completedOrders(since) {
		sales.TotalOrders++
		sales.TotalSales = sales.TotalSales.Add(o.Total)
		for _, item := range o.Items {
			if item.SellerID != nil {
				sellers[*item.SellerID] = true
			}
		}
	}
	sales.ActiveSellers = len(sellers)
	return sales, nil
}

func (r *fakeRepo) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.processed[eventID], nil
}

func (r *fakeRepo) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed[eventID] = true
	return nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu            sync.Mutex
	created       []*models.OrderCreatedEvent
	statusChanged []*models.OrderStatusChanged
	recorded      []*models.CommissionsRecordedEvent
	updated       []*models.CommissionsUpdatedEvent
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanged = append(p.statusChanged, e)
	return nil
}

func (p *fakePublisher) PublishCommissionsRecorded(ctx context.Context, e *models.CommissionsRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, e)
	return nil
}

func (p *fakePublisher) PublishCommissionsUpdated(ctx context.Context, e *models.CommissionsUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, e)
	return nil
}

// fakeKV implements IdempotencyStore and Locker
type fakeKV struct {
	mu     sync.Mutex
	orders map[string]int64
	locks  map[string]string
	tokens int
}

func newFakeKV() *fakeKV {
	return &fakeKV{orders: map[string]int64{}, locks: map[string]string{}}
}

func (k *fakeKV) RememberOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	name := fmt.Sprintf("%d:%s", userID, key)
	if _, ok := k.orders[name]; !ok {
		k.orders[name] = orderID
	}
	return nil
}

func (k *fakeKV) LookupOrder(ctx context.Context, userID int64, key string) (int64, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	id, ok := k.orders[fmt.Sprintf("%d:%s", userID, key)]
	return id, ok, nil
}

func (k *fakeKV) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, held := k.locks[key]; held {
		return "", false, nil
	}
	k.tokens++
	token := fmt.Sprintf("token-%d", k.tokens)
	k.locks[key] = token
	return token, true, nil
}

func (k *fakeKV) ReleaseLock(ctx context.Context, key, token string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks[key] == token {
		delete(k.locks, key)
	}
	return nil
}

// expireLock drops key as if its TTL had run out
func (k *fakeKV) expireLock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.locks, key)
}

const (
	adminID  int64 = 1
	sellerA  int64 = 2
	buyerB   int64 = 3
	sellerC  int64 = 4
	idleUser int64 = 5
)

var (
	admin  = models.Principal{UserID: adminID, IsAdmin: true}
	seller = models.Principal{UserID: sellerA}
	buyer  = models.Principal{UserID: buyerB}
	other  = models.Principal{UserID: sellerC}
	anon   = models.Principal{}
)

var rate = decimal.RequireFromString("0.05")

type harness struct {
	repo       *fakeRepo
	publisher  *fakePublisher
	kv         *fakeKV
	dispatcher *events.Dispatcher
	filter     *OwnershipFilter
	ledger     *CommissionLedger
	products   *ProductService
	orders     *OrderService
	stats      *StatsService
	hostEvents *HostEventHandler
}

func newHarness(t *testing.T, opts OrderOptions) *harness {
	t.Helper()

	h := &harness{
		repo:       newFakeRepo(),
		publisher:  &fakePublisher{},
		kv:         newFakeKV(),
		dispatcher: events.NewDispatcher(),
	}
	for _, u := range []models.User{
		{ID: adminID, DisplayName: "Admin", Email: "admin@example.com", IsAdmin: true},
		{ID: sellerA, DisplayName: "Seller A", Email: "a@example.com"},
		{ID: buyerB, DisplayName: "Buyer B", Email: "b@example.com"},
		{ID: sellerC, DisplayName: "Seller C", Email: "c@example.com"},
		{ID: idleUser, DisplayName: "Idle", Email: "idle@example.com"},
	} {
		h.repo.users[u.ID] = u
	}

	h.filter = NewOwnershipFilter(h.repo)
	h.ledger = NewCommissionLedger(h.repo, rate, h.publisher)
	h.products = NewProductService(h.repo, h.filter)
	h.orders = NewOrderService(h.repo, h.filter, h.dispatcher, h.publisher, h.kv, h.kv, opts)
	h.stats = NewStatsService(h.repo, h.ledger)
	h.hostEvents = NewHostEventHandler(h.repo, h.orders)
	h.dispatcher.Subscribe("commission-ledger", h.ledger.HandleOrderStatusChanged)
	return h
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (h *harness) mustCreateProduct(t *testing.T, owner models.Principal, name, price string) *models.Product {
	t.Helper()
	p, err := h.products.Create(context.Background(), owner, ProductInput{Name: strPtr(name), RegularPrice: decPtr(price)})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (h *harness) mustCreateOrder(t *testing.T, p models.Principal, lines ...LineItemRequest) *models.Order {
	t.Helper()
	o, err := h.orders.Create(context.Background(), p, &CreateOrderRequest{LineItems: lines})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (h *harness) mustSetStatus(t *testing.T, orderID int64, status string) {
	t.Helper()
	if _, err := h.orders.UpdateStatus(context.Background(), admin, orderID, status); err != nil {
		t.Fatalf("update status: %v", err)
	}
}
