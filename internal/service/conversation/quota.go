package conversation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"shopchat/internal/models"
)

// CheckQuota compares the shop's session count for the current calendar
// month against the plan ceiling. A limit <= 0 means unlimited and skips the
// count entirely. The check is a soft ceiling: a concurrent request may slip
// past by a message or two, which is acceptable.
func (s *Service) CheckQuota(ctx context.Context, shop string, limit int64) (models.QuotaStatus, error) {
	if limit <= 0 {
		return models.QuotaStatus{Allowed: true, Limit: limit}, nil
	}
	var used int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE shop = ? AND created_at >= ?`,
		shop, monthStart(time.Now().UTC()),
	).Scan(&used); err != nil {
		return models.QuotaStatus{}, errors.Wrap(err, "count monthly sessions")
	}
	return models.QuotaStatus{Allowed: used < limit, Used: used, Limit: limit}, nil
}

// monthStart is the first instant of t's calendar month in UTC. Quota resets
// only at month boundaries.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
