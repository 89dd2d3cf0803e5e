package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/turnkeeper/internal/models"
)

// PutClientRecord creates or replaces the record for (client_id, session_id)
func (s *Storage) PutClientRecord(ctx context.Context, record *models.ClientRecord) error {
	connectedAt := record.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO client_records
			(client_id, session_id, game_id, ruleset_hash, connected_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ClientID, record.SessionID, record.GameID, record.RulesetHash, connectedAt.Unix(),
	); err != nil {
		return fmt.Errorf("failed to put client record: %w", err)
	}

	return nil
}

// DeleteClientRecord removes a single client's record; absent record is a no-op
func (s *Storage) DeleteClientRecord(ctx context.Context, sessionID, clientID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_records WHERE session_id = ? AND client_id = ?`,
		sessionID, clientID,
	); err != nil {
		return fmt.Errorf("failed to delete client record: %w", err)
	}
	return nil
}

// DeleteSessionRecords removes every record of a session
func (s *Storage) DeleteSessionRecords(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_records WHERE session_id = ?`,
		sessionID,
	); err != nil {
		return fmt.Errorf("failed to delete session records: %w", err)
	}
	return nil
}

// ListSessionRecords returns the records of a session ordered by connection time
func (s *Storage) ListSessionRecords(ctx context.Context, sessionID string) ([]*models.ClientRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, session_id, game_id, ruleset_hash, connected_at
		 FROM client_records
		 WHERE session_id = ?
		 ORDER BY connected_at ASC, client_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var records []*models.ClientRecord
	for rows.Next() {
		record := &models.ClientRecord{}
		var connectedAt int64

		if err := rows.Scan(
			&record.ClientID,
			&record.SessionID,
			&record.GameID,
			&record.RulesetHash,
			&connectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan client record: %w", err)
		}

		record.ConnectedAt = time.Unix(connectedAt, 0)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
