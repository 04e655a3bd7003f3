// Package conversation is the store for cross-request chat state: sessions,
// message history, the monthly quota counter, per-shop settings and the
// analytics aggregates. All concurrency control is delegated to the database;
// the quota counter is read-then-write approximate by design.
package conversation

import (
	"database/sql"
	"time"

	"golang.org/x/sync/singleflight"

	"shopchat/internal/redis"
)

// ContinuityWindow is how long a session stays "active" after its last
// message. Conversational context never spans more than a day of inactivity.
const ContinuityWindow = 24 * time.Hour

// Service handles conversation persistence and shop configuration lookups.
type Service struct {
	db           *sql.DB
	cache        *redis.Client
	settingsTTL  time.Duration
	historyLimit int
	sf           singleflight.Group
}

// NewService builds the conversation service. cache may be nil; settings
// lookups then always hit the database.
func NewService(db *sql.DB, cache *redis.Client, settingsTTL time.Duration, historyLimit int) *Service {
	if settingsTTL <= 0 {
		settingsTTL = 5 * time.Minute
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{db: db, cache: cache, settingsTTL: settingsTTL, historyLimit: historyLimit}
}

// HistoryLimit is the size of the rolling working set of messages.
func (s *Service) HistoryLimit() int { return s.historyLimit }
