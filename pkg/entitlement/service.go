package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contentdesk/contentdesk/pkg/cache"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// InsufficientTokensError is returned when a debit is rejected. The balance
// is left untouched by a rejected debit.
type InsufficientTokensError struct {
	Required  int
	Available int
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: %d required, %d available", e.Required, e.Available)
}

// Entitlement is the effective account state after lazy expiry and the
// monthly reset have been applied.
type Entitlement struct {
	UserID          string     `json:"user_id"`
	Email           string     `json:"email"`
	Tier            store.Tier `json:"tier"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	Tokens          int        `json:"tokens"`
	NextReset       time.Time  `json:"next_reset"`
}

// Service computes effective subscription state and manages the token
// ledger. All reads and writes are synchronous round-trips to the external
// account store; store failures propagate to the caller.
type Service struct {
	users store.UserStore
	cache *cache.Client
	log   logger.Logger
}

// NewService creates a new entitlement service. cache may be nil (tests);
// snapshots are then never cached.
func NewService(users store.UserStore, cacheClient *cache.Client, log logger.Logger) *Service {
	return &Service{
		users: users,
		cache: cacheClient,
		log:   log,
	}
}

const snapshotTTL = 60 * time.Second

func snapshotKey(userID string) string {
	return "entitlement:" + userID
}

// Resolve reads the user's effective entitlement, applying lazy subscription
// expiry and the monthly token reset as side effects of the read. There is
// no background sweeper: a user who never triggers a read never resets.
func (s *Service) Resolve(ctx context.Context, userID string) (*Entitlement, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	fields := store.Fields{}

	// Lazy expiry: Premium only while now < SubscriptionEnd
	if u.Tier == store.TierPremium && u.SubscriptionEnd != nil && !now.Before(*u.SubscriptionEnd) {
		u.Tier = store.TierFree
		u.SubscriptionEnd = nil
		fields["Subscription"] = store.TierFree
		fields["SubscriptionEnd"] = (*time.Time)(nil)
		s.log.Info("subscription expired, downgraded to Free", "user_id", userID)
	}

	// Monthly reset: idempotent per calendar month, triggered only by access
	if !now.Before(u.LastReset.AddDate(0, 1, 0)) {
		u.Tokens = MonthlyAllotment(u.Tier)
		u.LastReset = now
		fields["Tokens"] = u.Tokens
		fields["LastReset"] = now
		s.log.Info("monthly token reset applied", "user_id", userID, "tokens", u.Tokens)
	}

	if len(fields) > 0 {
		if err := s.users.Update(ctx, userID, fields); err != nil {
			return nil, fmt.Errorf("failed to persist entitlement changes: %w", err)
		}
	}

	ent := &Entitlement{
		UserID:          u.ID,
		Email:           u.Email,
		Tier:            u.Tier,
		SubscriptionEnd: u.SubscriptionEnd,
		Tokens:          u.Tokens,
		NextReset:       u.LastReset.AddDate(0, 1, 0),
	}
	s.cacheSnapshot(ctx, ent)
	return ent, nil
}

// Cached returns the cached entitlement snapshot when present, falling back
// to an authoritative Resolve. Snapshots are invalidated on every
// entitlement-changing write.
func (s *Service) Cached(ctx context.Context, userID string) (*Entitlement, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, snapshotKey(userID)); err == nil && raw != "" {
			var ent Entitlement
			if err := json.Unmarshal([]byte(raw), &ent); err == nil {
				return &ent, nil
			}
		}
	}
	return s.Resolve(ctx, userID)
}

// Debit spends tokens for a request. The precondition is checked against the
// effective balance; a rejected debit leaves the balance unchanged.
func (s *Service) Debit(ctx context.Context, userID string, cost int) (*Entitlement, error) {
	ent, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ent.Tokens < cost {
		return nil, &InsufficientTokensError{Required: cost, Available: ent.Tokens}
	}

	ent.Tokens -= cost
	if err := s.users.Update(ctx, userID, store.Fields{"Tokens": ent.Tokens}); err != nil {
		return nil, fmt.Errorf("failed to debit tokens: %w", err)
	}

	s.invalidate(ctx, userID)
	s.log.Info("tokens debited", "user_id", userID, "cost", cost, "balance", ent.Tokens)
	return ent, nil
}

// Credit adds purchased tokens to the balance, flooring at zero on any
// negative adjustment.
func (s *Service) Credit(ctx context.Context, userID string, amount int) (*Entitlement, error) {
	ent, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	ent.Tokens += amount
	if ent.Tokens < 0 {
		ent.Tokens = 0
	}
	if err := s.users.Update(ctx, userID, store.Fields{"Tokens": ent.Tokens}); err != nil {
		return nil, fmt.Errorf("failed to credit tokens: %w", err)
	}

	s.invalidate(ctx, userID)
	s.log.Info("tokens credited", "user_id", userID, "amount", amount, "balance", ent.Tokens)
	return ent, nil
}

// Upgrade moves the user to Premium for 30 days from now. Renewing before
// expiry extends from now, not from the prior expiry. The balance becomes
// the Premium allotment minus whatever the user already consumed this month,
// and never shrinks below the current balance.
func (s *Service) Upgrade(ctx context.Context, userID string) (*Entitlement, error) {
	ent, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	end := now.Add(30 * 24 * time.Hour)

	consumed := MonthlyAllotment(ent.Tier) - ent.Tokens
	if consumed < 0 {
		consumed = 0
	}
	tokens := PremiumMonthlyTokens - consumed
	if tokens < ent.Tokens {
		tokens = ent.Tokens
	}
	if tokens < 0 {
		tokens = 0
	}

	fields := store.Fields{
		"Subscription":    store.TierPremium,
		"SubscriptionEnd": end,
		"Tokens":          tokens,
		"LastReset":       now,
	}
	if err := s.users.Update(ctx, userID, fields); err != nil {
		return nil, fmt.Errorf("failed to upgrade subscription: %w", err)
	}

	s.invalidate(ctx, userID)
	s.log.Info("subscription upgraded to Premium", "user_id", userID, "expires", end, "tokens", tokens)

	ent.Tier = store.TierPremium
	ent.SubscriptionEnd = &end
	ent.Tokens = tokens
	ent.NextReset = now.AddDate(0, 1, 0)
	return ent, nil
}

func (s *Service) cacheSnapshot(ctx context.Context, ent *Entitlement) {
	if s.cache == nil {
		return
	}
	buf, err := json.Marshal(ent)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(ent.UserID), string(buf), snapshotTTL); err != nil {
		s.log.Warn("failed to cache entitlement snapshot", "user_id", ent.UserID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, snapshotKey(userID)); err != nil {
		s.log.Warn("failed to invalidate entitlement snapshot", "user_id", userID, "error", err)
	}
}
