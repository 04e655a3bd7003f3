package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"shopchat/internal/models"
)

// EnsureSession resolves the active session for a (shop, session key) pair,
// opening a new one when none has seen a message inside the continuity
// window. The profile row is created lazily, at most once per pair.
func (s *Service) EnsureSession(ctx context.Context, shop, sessionKey, customerID string) (*models.Session, error) {
	if shop == "" || sessionKey == "" {
		return nil, errors.New("shop and session key are required")
	}
	now := time.Now().UTC()

	// Plain statements only; the sqlite and mysql drivers disagree on upsert
	// syntax. A lost race on the insert is settled by re-reading under the
	// unique (shop, session_key) index.
	var profileID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE shop = ? AND session_key = ?`,
		shop, sessionKey,
	).Scan(&profileID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, insErr := s.db.ExecContext(ctx,
			`INSERT INTO profiles (shop, session_key, customer_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			shop, sessionKey, customerID, now,
		)
		if insErr != nil {
			if err := s.db.QueryRowContext(ctx,
				`SELECT id FROM profiles WHERE shop = ? AND session_key = ?`,
				shop, sessionKey,
			).Scan(&profileID); err != nil {
				return nil, errors.Wrap(insErr, "ensure profile")
			}
		} else if profileID, err = res.LastInsertId(); err != nil {
			return nil, errors.Wrap(err, "profile id")
		}
	case err != nil:
		return nil, errors.Wrap(err, "lookup profile")
	}

	cutoff := now.Add(-ContinuityWindow)
	var sess models.Session
	err = s.db.QueryRowContext(ctx,
		`SELECT id, shop, session_key, customer_id, created_at, last_message_at
		 FROM sessions
		 WHERE shop = ? AND session_key = ? AND last_message_at >= ?
		 ORDER BY last_message_at DESC LIMIT 1`,
		shop, sessionKey, cutoff,
	).Scan(&sess.ID, &sess.Shop, &sess.SessionKey, &sess.CustomerID, &sess.CreatedAt, &sess.LastMessageAt)
	if err == nil {
		return &sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "lookup session")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (profile_id, shop, session_key, customer_id, created_at, last_message_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		profileID, shop, sessionKey, customerID, now, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "session id")
	}
	return &models.Session{
		ID: id, Shop: shop, SessionKey: sessionKey, CustomerID: customerID,
		CreatedAt: now, LastMessageAt: now,
	}, nil
}

// AppendMessage stores a message and touches the session's last_message_at.
// Messages are immutable once written.
func (s *Service) AppendMessage(ctx context.Context, sessionID int64, msg models.Message) (*models.Message, error) {
	if sessionID <= 0 {
		return nil, errors.New("session id is required")
	}
	now := time.Now().UTC()
	shown, err := json.Marshal(msg.ProductsShown)
	if err != nil {
		return nil, errors.Wrap(err, "encode products shown")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, intent, sentiment, confidence, products_shown, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, msg.Intent, msg.Sentiment, msg.Confidence, string(shown), now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "message id")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_message_at = ? WHERE id = ?`, now, sessionID,
	); err != nil {
		return nil, errors.Wrap(err, "touch session")
	}
	msg.ID = id
	msg.SessionID = sessionID
	msg.CreatedAt = now
	return &msg, nil
}

// RecentHistory returns the most recent messages for a session in original
// order, capped at the working-set limit.
func (s *Service) RecentHistory(ctx context.Context, sessionID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, intent, sentiment, confidence, products_shown, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`,
		sessionID, s.historyLimit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var newestFirst []models.Message
	for rows.Next() {
		var m models.Message
		var shown string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Intent, &m.Sentiment, &m.Confidence, &shown, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		if shown != "" {
			_ = json.Unmarshal([]byte(shown), &m.ProductsShown)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		history[len(newestFirst)-1-i] = m
	}
	return history, nil
}

// AppendAndFetchHistory resolves the session, persists the message and
// returns the rolling history including it, in one call. The chat pipeline
// does these steps separately because it fetches history before the reply
// exists; this is for ingest paths that only record.
func (s *Service) AppendAndFetchHistory(ctx context.Context, shop, sessionKey, customerID string, msg models.Message) (*models.Session, []models.Message, error) {
	sess, err := s.EnsureSession(ctx, shop, sessionKey, customerID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.AppendMessage(ctx, sess.ID, msg); err != nil {
		return sess, nil, err
	}
	history, err := s.RecentHistory(ctx, sess.ID)
	return sess, history, err
}
