package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/period"
	"marketplace-service/internal/store"
)

// EventPublisher is the outbound event stream. Publishing is best-effort.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChanged) error
	PublishCommissionsRecorded(ctx context.Context, event *models.CommissionsRecordedEvent) error
	PublishCommissionsUpdated(ctx context.Context, event *models.CommissionsUpdatedEvent) error
}

// IdempotencyStore remembers which order a client request key produced
type IdempotencyStore interface {
	RememberOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error
	LookupOrder(ctx context.Context, userID int64, key string) (int64, bool, error)
}

// Locker serializes work on a shared key. Release only succeeds for the
// token returned by the matching acquire.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// storageErr converts a repository failure into the service error taxonomy
func storageErr(message string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Persistence(message, err)
}

// lookupErr is storageErr for reads of a single entity
func lookupErr(code, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(code, what+" not found.")
	}
	return storageErr("Failed to load "+what+".", err)
}

// windowStart resolves p to a store bound, rejecting unknown tokens
func windowStart(p period.Period, now time.Time) (*time.Time, error) {
	since, err := period.Since(p, now)
	if err != nil {
		return nil, apperr.Validation("invalid_period", fmt.Sprintf("Unknown period %q.", string(p)))
	}
	return since, nil
}

func requireAuth(p models.Principal) error {
	if !p.IsAuthenticated() && p != models.SystemPrincipal {
		return apperr.Unauthenticated()
	}
	return nil
}
