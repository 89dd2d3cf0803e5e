package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iudanet/turnkeeper/internal/models"
)

// Append assigns the next timestamp and persists the entry durably.
// The read-assign-insert section runs under the game's mutex inside a single
// transaction: concurrent appends to the same game never collide or reorder,
// and a failed insert rolls back without advancing the counter.
// The game row is created on first use.
func (s *Storage) Append(ctx context.Context, gameID string, payload []byte) (int64, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback после успешного Commit — no-op
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	// Создаем игру при первом использовании id
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO games (id, created_at) VALUES (?, ?)`,
		gameID, now.Unix(),
	); err != nil {
		return 0, fmt.Errorf("failed to ensure game row: %w", err)
	}

	// Читаем последний timestamp и назначаем следующий
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM log_entries WHERE game_id = ?`,
		gameID,
	).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last timestamp: %w", err)
	}

	timestamp := last.Int64 + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_entries (game_id, timestamp, payload, appended_at) VALUES (?, ?, ?, ?)`,
		gameID, timestamp, payload, now.Unix(),
	); err != nil {
		return 0, fmt.Errorf("failed to insert log entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}

	return timestamp, nil
}

// Tail returns the n most recent entries ordered oldest to newest.
// n <= 0 returns the whole log. An unknown game yields an empty log.
func (s *Storage) Tail(ctx context.Context, gameID string, n int) ([]models.LogEntry, error) {
	query := `
		SELECT game_id, timestamp, payload, appended_at
		FROM (
			SELECT game_id, timestamp, payload, appended_at
			FROM log_entries
			WHERE game_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC
	`

	limit := n
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 снимает ограничение
	}

	rows, err := s.db.QueryContext(ctx, query, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tail: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return scanEntries(rows)
}

// RangeFrom returns entries with timestamp strictly greater than after,
// ascending
func (s *Storage) RangeFrom(ctx context.Context, gameID string, after int64) ([]models.LogEntry, error) {
	query := `
		SELECT game_id, timestamp, payload, appended_at
		FROM log_entries
		WHERE game_id = ? AND timestamp > ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, gameID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return scanEntries(rows)
}

// Contains reports whether the game's log has an entry at timestamp
func (s *Storage) Contains(ctx context.Context, gameID string, timestamp int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM log_entries WHERE game_id = ? AND timestamp = ?`,
		gameID, timestamp,
	).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check entry existence: %w", err)
	}
	return true, nil
}

// LastTimestamp returns the highest assigned timestamp, 0 for an empty log
func (s *Storage) LastTimestamp(ctx context.Context, gameID string) (int64, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM log_entries WHERE game_id = ?`,
		gameID,
	).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read last timestamp: %w", err)
	}
	return last.Int64, nil
}

// GameExists reports whether a game row was ever created for gameID
func (s *Storage) GameExists(ctx context.Context, gameID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM games WHERE id = ?`, gameID,
	).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check game existence: %w", err)
	}
	return true, nil
}

// CreateGame creates the game row; creating an existing game is a no-op
func (s *Storage) CreateGame(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO games (id, created_at) VALUES (?, ?)`,
		gameID, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// scanEntries is a helper function to scan multiple log entries from rows
func scanEntries(rows *sql.Rows) ([]models.LogEntry, error) {
	var entries []models.LogEntry

	for rows.Next() {
		var entry models.LogEntry
		var appendedAt int64

		if err := rows.Scan(
			&entry.GameID,
			&entry.Timestamp,
			&entry.Payload,
			&appendedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.AppendedAt = time.Unix(appendedAt, 0)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}
