package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/turnkeeper/internal/client/storage"
	"github.com/iudanet/turnkeeper/internal/models"
)

// tsKey кодирует timestamp в big-endian ключ: байтовый порядок bucket'а
// совпадает с порядком лога
func tsKey(timestamp int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(timestamp))
	return key
}

// AppendEntries persists entries at the end of the game's local log
func (s *Storage) AppendEntries(ctx context.Context, gameID string, entries []models.LogEntry) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if len(entries) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketLogs).CreateBucketIfNotExists([]byte(gameID))
		if err != nil {
			return fmt.Errorf("failed to create game bucket: %w", err)
		}

		for _, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			if err := bucket.Put(tsKey(entry.Timestamp), data); err != nil {
				return fmt.Errorf("failed to save entry: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// LastEntry returns the newest local entry of the game
func (s *Storage) LastEntry(ctx context.Context, gameID string) (*models.LogEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entry *models.LogEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLogs).Bucket([]byte(gameID))
		if bucket == nil {
			return storage.ErrEntryNotFound
		}

		_, data := bucket.Cursor().Last()
		if data == nil {
			return storage.ErrEntryNotFound
		}

		entry = &models.LogEntry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return fmt.Errorf("failed to unmarshal entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Entries returns the whole local log ordered oldest to newest
func (s *Storage) Entries(ctx context.Context, gameID string) ([]models.LogEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entries []models.LogEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLogs).Bucket([]byte(gameID))
		if bucket == nil {
			// Лог игры еще не создавался — пустой результат
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var entry models.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	return entries, nil
}

// TruncateAfter drops every local entry with timestamp strictly greater
// than timestamp
func (s *Storage) TruncateAfter(ctx context.Context, gameID string, timestamp int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLogs).Bucket([]byte(gameID))
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(tsKey(timestamp + 1)); k != nil; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("failed to delete entry: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// ReplaceLog atomically replaces the local log with entries
func (s *Storage) ReplaceLog(ctx context.Context, gameID string, entries []models.LogEntry) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		logs := tx.Bucket(bucketLogs)

		if logs.Bucket([]byte(gameID)) != nil {
			if err := logs.DeleteBucket([]byte(gameID)); err != nil {
				return fmt.Errorf("failed to drop game bucket: %w", err)
			}
		}

		bucket, err := logs.CreateBucket([]byte(gameID))
		if err != nil {
			return fmt.Errorf("failed to create game bucket: %w", err)
		}

		for _, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			if err := bucket.Put(tsKey(entry.Timestamp), data); err != nil {
				return fmt.Errorf("failed to save entry: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}
