package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumen-search/backend/pkg/services/llm"
)

type Receipt struct {
	ID     int64
	UserID int64
	// ServiceName is the name of the service used for this receipt.
	// It is not in this DB table, but is used for internal logic.
	ServiceName  llm.ServiceName
	ServiceID    int64
	Timestamp    time.Time
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	NumSearches  int64
	NumToolCalls int64
	NumRequests  int64
	AudioSeconds float64
	Metadata     json.RawMessage
}

// Insert inserts a new receipt into the database.
// It updates the Receipt's ID with the ID from the database.
func (r *Receipt) Insert(ctx context.Context) error {
	// The service name, not the ID, is set by the caller.
	err := D.QueryRowContext(ctx, "SELECT id FROM services WHERE name = ?", r.ServiceName).Scan(&r.ServiceID)
	if err != nil {
		return fmt.Errorf("failed to get service id for %s: %w", r.ServiceName, err)
	}
	res, err := D.ExecContext(ctx,
		`INSERT INTO receipts (user_id, service_id, input_tokens, output_tokens, total_tokens,
			num_searches, num_tool_calls, num_requests, audio_seconds, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.ServiceID, r.InputTokens, r.OutputTokens, r.TotalTokens,
		r.NumSearches, r.NumToolCalls, r.NumRequests, r.AudioSeconds, r.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	return nil
}

type MonthlyUsage struct {
	Requests    int64
	TotalTokens int64
	Searches    int64
}

// GetMonthlyUsage sums the user's receipts since the start of the current
// calendar month (UTC). Runs on a read replica.
func GetMonthlyUsage(ctx context.Context, userID int64) (MonthlyUsage, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return monthlyUsageSince(ctx, userID, monthStart)
}

func monthlyUsageSince(ctx context.Context, userID int64, monthStart time.Time) (MonthlyUsage, error) {
	var u MonthlyUsage
	// timestamp is a TEXT column written by datetime('now'). The bound value
	// must use the same format; a time.Time binds as RFC3339, which compares
	// lexicographically wrong against "YYYY-MM-DD HH:MM:SS".
	err := Read().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(num_requests), 0), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(num_searches), 0)
		FROM receipts WHERE user_id = ? AND timestamp >= ?`,
		userID, monthStart.Format("2006-01-02 15:04:05")).Scan(&u.Requests, &u.TotalTokens, &u.Searches)
	if err != nil {
		return u, fmt.Errorf("failed to get monthly usage: %w", err)
	}
	return u, nil
}
