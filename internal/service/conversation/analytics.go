package conversation

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"shopchat/internal/models"
)

// AggregateRow is one (shop, intent, sentiment) analytics bucket with a
// message count and incremental averages.
type AggregateRow struct {
	Shop          string           `json:"shop"`
	Intent        models.Intent    `json:"intent"`
	Sentiment     models.Sentiment `json:"sentiment"`
	MessageCount  int64            `json:"message_count"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgResponseMs float64          `json:"avg_response_ms"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// RecordAggregate folds one handled message into its analytics bucket using
// incremental averages. Read-then-write inside a transaction; buckets are
// coarse enough that lost updates under contention do not matter.
func (s *Service) RecordAggregate(ctx context.Context, shop string, intent models.Intent, sentiment models.Sentiment, confidence float64, responseMs int64) error {
	if shop == "" {
		return errors.New("shop is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin analytics tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var (
		count   int64
		avgConf float64
		avgMs   float64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT message_count, avg_confidence, avg_response_ms FROM analytics
		 WHERE shop = ? AND intent = ? AND sentiment = ?`,
		shop, intent, sentiment,
	).Scan(&count, &avgConf, &avgMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO analytics (shop, intent, sentiment, message_count, avg_confidence, avg_response_ms, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?, ?)`,
			shop, intent, sentiment, confidence, float64(responseMs), now,
		)
	case err != nil:
		return errors.Wrap(err, "read analytics bucket")
	default:
		n := float64(count)
		avgConf += (confidence - avgConf) / (n + 1)
		avgMs += (float64(responseMs) - avgMs) / (n + 1)
		_, err = tx.ExecContext(ctx,
			`UPDATE analytics SET message_count = ?, avg_confidence = ?, avg_response_ms = ?, updated_at = ?
			 WHERE shop = ? AND intent = ? AND sentiment = ?`,
			count+1, avgConf, avgMs, now, shop, intent, sentiment,
		)
	}
	if err != nil {
		return errors.Wrap(err, "write analytics bucket")
	}
	return errors.Wrap(tx.Commit(), "commit analytics")
}

// AnalyticsSummary lists the shop's aggregate rows, busiest buckets first.
func (s *Service) AnalyticsSummary(ctx context.Context, shop string) ([]AggregateRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shop, intent, sentiment, message_count, avg_confidence, avg_response_ms, updated_at
		 FROM analytics WHERE shop = ? ORDER BY message_count DESC`,
		shop,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list analytics")
	}
	defer rows.Close()

	summary := make([]AggregateRow, 0)
	for rows.Next() {
		var row AggregateRow
		if err := rows.Scan(&row.Shop, &row.Intent, &row.Sentiment, &row.MessageCount,
			&row.AvgConfidence, &row.AvgResponseMs, &row.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan analytics row")
		}
		summary = append(summary, row)
	}
	return summary, rows.Err()
}
