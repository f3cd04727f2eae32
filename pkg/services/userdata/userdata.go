// Package userdata assembles the comprehensive per-user snapshot the API
// serves and the chat pipeline gates on: user row, subscription-derived pro
// status, and month-to-date usage. Snapshots are cached in-memory with a TTL.
package userdata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/db/subscriptions"
	"github.com/lumen-search/backend/pkg/services/db/users"
)

// FreeMonthlyRequests is the request allowance for users without an active
// subscription, reset at the start of each calendar month (UTC).
const FreeMonthlyRequests = 50

const cacheTTL = 30 * time.Second

type ComprehensiveUserData struct {
	User              users.User
	Pro               bool
	Plan              string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	Usage             db.MonthlyUsage
	FreeRequestsLeft  int64
}

type cacheEntry struct {
	data    ComprehensiveUserData
	expires time.Time
}

type Service struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func NewService() *Service {
	return &Service{
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

// Get returns the comprehensive snapshot for the user, reading through the
// cache. Entries older than the TTL are refetched.
func (s *Service) Get(ctx context.Context, uid string) (ComprehensiveUserData, error) {
	s.mu.RLock()
	entry, ok := s.cache[uid]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		return entry.data, nil
	}
	data, err := s.fetch(ctx, uid)
	if err != nil {
		return ComprehensiveUserData{}, err
	}
	s.mu.Lock()
	s.cache[uid] = cacheEntry{data: data, expires: s.now().Add(cacheTTL)}
	s.mu.Unlock()
	return data, nil
}

// Invalidate drops the user's cached snapshot. Called by the billing webhook
// so a new subscription takes effect without waiting out the TTL.
func (s *Service) Invalidate(uid string) {
	s.mu.Lock()
	delete(s.cache, uid)
	s.mu.Unlock()
	slog.Debug("invalidated user data cache", "uid", uid)
}

func (s *Service) fetch(ctx context.Context, uid string) (ComprehensiveUserData, error) {
	user := users.User{UID: uid}
	if err := user.GetByUID(ctx, db.D); err != nil {
		return ComprehensiveUserData{}, fmt.Errorf("failed to get user %s: %w", uid, err)
	}
	data := ComprehensiveUserData{User: user, Plan: "free"}

	sub, err := subscriptions.GetLatestByUserID(ctx, db.Read(), user.ID)
	if err != nil && err != sql.ErrNoRows {
		return ComprehensiveUserData{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	if err == nil {
		data.Status = sub.Status
		data.CurrentPeriodEnd = sub.CurrentPeriodEnd
		data.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.Active(s.now()) {
			data.Pro = true
			data.Plan = planForPrice(sub.PriceID)
		}
	}

	usage, err := db.GetMonthlyUsage(ctx, user.ID)
	if err != nil {
		return ComprehensiveUserData{}, err
	}
	data.Usage = usage
	if !data.Pro {
		left := int64(FreeMonthlyRequests) - usage.Requests
		if left < 0 {
			left = 0
		}
		data.FreeRequestsLeft = left
	}
	return data, nil
}

func planForPrice(priceID string) string {
	switch priceID {
	case envs.PRICE_ID_PRO_MONTHLY:
		return "pro-monthly"
	case envs.PRICE_ID_PRO_YEARLY:
		return "pro-yearly"
	default:
		return "pro"
	}
}
