// internal/quota/limiter.go
package quota

import (
	"context"
	"errors"
	"time"

	"mcp-meal-vision/internal/models"
)

const DefaultDailyLimit = 3

var ErrDailyLimitReached = errors.New("daily analysis limit reached")

// Status describes a user's quota for the current UTC day.
type Status struct {
	Plan      models.PlanType `json:"plan_type"`
	Used      int             `json:"used"`
	Limit     int             `json:"limit"` // 0 means unlimited
	Remaining int             `json:"remaining"`
	ResetsAt  time.Time       `json:"resets_at"`
}

func (s Status) Unlimited() bool {
	return s.Limit == 0
}

// Limiter enforces the free plan's daily analysis count. Premium users are
// counted but never blocked.
type Limiter struct {
	store Store
	limit int
	now   func() time.Time
}

func NewLimiter(store Store, dailyLimit int) *Limiter {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Limiter{store: store, limit: dailyLimit, now: time.Now}
}

func (l *Limiter) today() (string, time.Time) {
	now := l.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start.Format("2006-01-02"), start.AddDate(0, 0, 1)
}

func (l *Limiter) status(plan models.PlanType, used int, resets time.Time) Status {
	st := Status{Plan: plan, Used: used, ResetsAt: resets}
	if plan != models.PlanPremium {
		st.Limit = l.limit
		st.Remaining = max(l.limit-used, 0)
	}
	return st
}

// Allow reports the current quota and returns ErrDailyLimitReached when a
// free user has no analyses left today.
func (l *Limiter) Allow(ctx context.Context, userID string, plan models.PlanType) (Status, error) {
	day, resets := l.today()
	used, err := l.store.Count(ctx, userID, day)
	if err != nil {
		return Status{}, err
	}
	st := l.status(plan, used, resets)
	if !st.Unlimited() && st.Remaining == 0 {
		return st, ErrDailyLimitReached
	}
	return st, nil
}

// Reservation holds one counted analysis slot until it is kept or released.
type Reservation struct {
	limiter  *Limiter
	userID   string
	day      string
	released bool
}

// Reserve atomically takes one of today's slots before an analysis starts,
// so concurrent calls cannot overrun the limit. Free users past the limit get
// ErrDailyLimitReached and nothing is counted.
func (l *Limiter) Reserve(ctx context.Context, userID string, plan models.PlanType) (*Reservation, Status, error) {
	day, resets := l.today()
	used, err := l.store.Incr(ctx, userID, day)
	if err != nil {
		return nil, Status{}, err
	}

	st := l.status(plan, used, resets)
	if !st.Unlimited() && used > l.limit {
		used, err = l.store.Decr(ctx, userID, day)
		if err != nil {
			return nil, Status{}, err
		}
		return nil, l.status(plan, used, resets), ErrDailyLimitReached
	}
	return &Reservation{limiter: l, userID: userID, day: day}, st, nil
}

// Release gives the slot back, e.g. after a failed analysis. It is safe to
// call more than once.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil || r.released {
		return nil
	}
	r.released = true
	_, err := r.limiter.store.Decr(ctx, r.userID, r.day)
	return err
}
