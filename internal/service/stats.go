package service

import (
	"context"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/period"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// recentSellerOrders bounds the order list on the seller detail view
const recentSellerOrders = 10

// StatsService derives seller and platform snapshots on demand
type StatsService struct {
	repo   store.Repository
	ledger *CommissionLedger
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(repo store.Repository, ledger *CommissionLedger) *StatsService {
	return &StatsService{
		repo:   repo,
		ledger: ledger,
		logger: util.Named("stats"),
		now:    time.Now,
	}
}

// SellerDetail is the administrator's view of one seller
type SellerDetail struct {
	User     *models.User        `json:"user"`
	Stats    *models.SellerStats `json:"stats"`
	Products []models.Product    `json:"products"`
	Orders   []models.Order      `json:"orders"`
}

// SellerStats computes a seller's snapshot for period
func (s *StatsService) SellerStats(ctx context.Context, sellerID int64, p period.Period) (*models.SellerStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.SellerStats",
		attribute.Int64("seller_id", sellerID), attribute.String("period", string(p)))
	defer span.End()
	start := time.Now()
	defer func() { util.StatsComputeLatency.WithLabelValues("seller").Observe(time.Since(start).Seconds()) }()

	now := s.now()
	since, err := windowStart(p, now)
	if err != nil {
		return nil, err
	}

	sales, err := s.repo.SellerSales(ctx, sellerID, since)
	if err != nil {
		return nil, storageErr("Failed to aggregate seller sales.", err)
	}

	commission, err := s.ledger.orderWindowTotal(ctx, sellerID, since)
	if err != nil {
		return nil, err
	}

	productCount, err := s.repo.CountProducts(ctx, models.ProductQuery{
		SellerID: &sellerID,
		Status:   models.ProductStatusPublished,
	})
	if err != nil {
		return nil, storageErr("Failed to count seller products.", err)
	}

	completed, err := s.repo.SellerCompletedOrders(ctx, sellerID)
	if err != nil {
		return nil, storageErr("Failed to load seller orders.", err)
	}

	stats := &models.SellerStats{
		TotalSales:        sales.TotalSales,
		OrderCount:        sales.OrderCount,
		Commission:        commission,
		NetEarnings:       sales.TotalSales.Sub(commission),
		ProductCount:      productCount,
		AverageOrderValue: decimal.Zero,
		OrderFrequency:    orderFrequency(completed, now),
	}
	if sales.OrderCount > 0 {
		stats.AverageOrderValue = sales.TotalSales.DivRound(decimal.NewFromInt(int64(sales.OrderCount)), 4)
	}
	return stats, nil
}

// PlatformStats computes the marketplace-wide snapshot for period
func (s *StatsService) PlatformStats(ctx context.Context, p period.Period) (*models.PlatformStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.PlatformStats", attribute.String("period", string(p)))
	defer span.End()
	start := time.Now()
	defer func() { util.StatsComputeLatency.WithLabelValues("platform").Observe(time.Since(start).Seconds()) }()

	since, err := windowStart(p, s.now())
	if err != nil {
		return nil, err
	}

	sales, err := s.repo.PlatformSales(ctx, since)
	if err != nil {
		return nil, storageErr("Failed to aggregate platform sales.", err)
	}

	commission, err := s.ledger.orderWindowTotal(ctx, 0, since)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.CountProducts(ctx, models.ProductQuery{
		Status:       models.ProductStatusPublished,
		CreatedSince: since,
	})
	if err != nil {
		return nil, storageErr("Failed to count products.", err)
	}

	return &models.PlatformStats{
		TotalSales:      sales.TotalSales,
		TotalOrders:     sales.TotalOrders,
		TotalCommission: commission,
		ActiveSellers:   sales.ActiveSellers,
		TotalProducts:   products,
	}, nil
}

// AllSellersWithStats lists every seller with sales inside period, windowed
// by pg after filtering
func (s *StatsService) AllSellersWithStats(ctx context.Context, p period.Period, pg models.Page) ([]models.SellerWithStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.AllSellersWithStats", attribute.String("period", string(p)))
	defer span.End()

	if _, err := windowStart(p, s.now()); err != nil {
		return nil, err
	}

	users, err := s.repo.ListSellers(ctx)
	if err != nil {
		return nil, storageErr("Failed to list sellers.", err)
	}

	result := []models.SellerWithStats{}
	for _, user := range users {
		stats, err := s.SellerStats(ctx, user.ID, p)
		if err != nil {
			return nil, err
		}
		if !stats.TotalSales.IsPositive() {
			continue
		}
		result = append(result, models.SellerWithStats{
			ID:          user.ID,
			Name:        user.DisplayName,
			Email:       user.Email,
			SellerStats: *stats,
		})
	}

	s.logger.Debug("Sellers with stats computed",
		zap.String("period", string(p)),
		zap.Int("sellers", len(users)),
		zap.Int("active", len(result)))
	return pageOf(result, pg), nil
}

func pageOf(sellers []models.SellerWithStats, pg models.Page) []models.SellerWithStats {
	if pg.Offset >= len(sellers) {
		return []models.SellerWithStats{}
	}
	sellers = sellers[pg.Offset:]
	if pg.Limit > 0 && pg.Limit < len(sellers) {
		sellers = sellers[:pg.Limit]
	}
	return sellers
}

// SellerDetail gathers a seller's account, snapshot, products and most
// recent orders
func (s *StatsService) SellerDetail(ctx context.Context, sellerID int64, p period.Period) (*SellerDetail, error) {
	if _, err := windowStart(p, s.now()); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, sellerID)
	if err != nil {
		return nil, lookupErr("user_not_found", "User", err)
	}

	stats, err := s.SellerStats(ctx, sellerID, p)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx, models.ProductQuery{SellerID: &sellerID})
	if err != nil {
		return nil, storageErr("Failed to list seller products.", err)
	}

	ids, err := s.repo.SellerOrderIDs(ctx, sellerID)
	if err != nil {
		return nil, storageErr("Failed to load seller orders.", err)
	}
	orders, err := s.repo.ListOrders(ctx, models.OrderQuery{
		Restricted: true,
		IDs:        ids,
		Limit:      recentSellerOrders,
	})
	if err != nil {
		return nil, storageErr("Failed to list seller orders.", err)
	}

	return &SellerDetail{User: user, Stats: stats, Products: products, Orders: orders}, nil
}

// orderFrequency is completed orders per whole elapsed month since the
// first one, or the plain count inside the first month
func orderFrequency(span models.OrderSpan, now time.Time) decimal.Decimal {
	if span.Count == 0 || span.FirstOrder == nil {
		return decimal.Zero
	}

	count := decimal.NewFromInt(int64(span.Count))
	months := wholeMonthsBetween(*span.FirstOrder, now)
	if months <= 0 {
		return count
	}
	return count.DivRound(decimal.NewFromInt(int64(months)), 4)
}

func wholeMonthsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		return 0
	}

	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	fromClock := time.Duration(from.Hour())*time.Hour + time.Duration(from.Minute())*time.Minute +
		time.Duration(from.Second())*time.Second + time.Duration(from.Nanosecond())
	toClock := time.Duration(to.Hour())*time.Hour + time.Duration(to.Minute())*time.Minute +
		time.Duration(to.Second())*time.Second + time.Duration(to.Nanosecond())
	if to.Day() < from.Day() || (to.Day() == from.Day() && toClock < fromClock) {
		months--
	}
	return months
}
