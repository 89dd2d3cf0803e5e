// Package sync implements the client side of log reconciliation: the fast
// path applies broadcast tail windows that overlap the local replica, the
// slow path repairs gaps and divergence with widening backlog requests.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/client/storage"
	"github.com/iudanet/turnkeeper/internal/models"
)

// maxWidenRequest — граница удвоения: запрос шире переходит в полный
// resync (n = 0)
const maxWidenRequest = 1024

// Requester asks the server for the n most recent log entries of the game.
// n == 0 requests the whole log.
type Requester interface {
	RequestLog(ctx context.Context, n int) ([]api.LogEntry, error)
}

// Result описывает исход reconciliation
type Result struct {
	// Applied — применено новых записей
	Applied int
	// Truncated — локальный дивергентный суффикс отброшен
	Truncated bool
	// Replaced — локальный лог заменен целиком
	Replaced bool
	// Requests — сделано запросов лога
	Requests int
}

// Service drives the local replica of one game's log
type Service struct {
	logger *slog.Logger
	store  storage.LogStorage
	gameID string
}

// NewService creates a reconciliation service for gameID over the local store
func NewService(logger *slog.Logger, store storage.LogStorage, gameID string) *Service {
	return &Service{
		logger: logger,
		store:  store,
		gameID: gameID,
	}
}

// ApplyWindow is the fast path for a broadcast tail window: when the window
// overlaps the local log tip with an identical entry, the new suffix is
// appended and true is returned. False means the window alone is not enough
// (gap, divergence or fresh replica) and the caller must Reconcile.
func (s *Service) ApplyWindow(ctx context.Context, window []api.LogEntry) (bool, error) {
	if len(window) == 0 {
		return true, nil
	}

	last, err := s.store.LastEntry(ctx, s.gameID)
	if err != nil {
		if !errors.Is(err, storage.ErrEntryNotFound) {
			return false, fmt.Errorf("failed to read local tip: %w", err)
		}

		// Пустая реплика: окно применимо, только если оно покрывает
		// начало лога
		if window[0].Timestamp != 1 {
			return false, nil
		}
		if err := s.append(ctx, window); err != nil {
			return false, err
		}
		return true, nil
	}

	// Ищем локальную последнюю запись в окне
	for i, entry := range window {
		if entry.Timestamp != last.Timestamp {
			continue
		}
		if string(entry.Payload) != string(last.Payload) {
			// Тот же timestamp, другой payload — реплика разошлась
			return false, nil
		}
		if err := s.append(ctx, window[i+1:]); err != nil {
			return false, err
		}
		return true, nil
	}

	// Перекрытия нет: окно позади, впереди с разрывом, или реплика
	// дивергентна — решает reconciliation
	return false, nil
}

// Reconcile repairs the local replica with widening backlog requests: start
// at twice the broadcast window, double on every miss, fall back to a full
// resync past the widening bound. A reply shorter than requested proves the
// log start was reached, so the loop always terminates.
func (s *Service) Reconcile(ctx context.Context, req Requester) (*Result, error) {
	result := &Result{}

	n := 2 * api.TailWindow
	for {
		entries, err := req.RequestLog(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("failed to request log: %w", err)
		}
		result.Requests++

		coversStart := n == 0 || len(entries) < n

		merged, err := s.merge(ctx, entries, coversStart, result)
		if err != nil {
			return nil, err
		}
		if merged {
			s.logger.Debug("reconciled",
				"game_id", s.gameID,
				"requests", result.Requests,
				"applied", result.Applied,
				"truncated", result.Truncated,
				"replaced", result.Replaced)
			return result, nil
		}

		// Нет общей записи в ответе — расширяем запрос
		n *= 2
		if n > maxWidenRequest {
			n = 0
		}
	}
}

// merge tries to join the server reply onto the local replica: find the
// newest local entry that matches a server entry exactly, drop everything
// local after it, append everything from the server after it. Without a
// match the merge only succeeds when the reply covers the log start, in
// which case the server copy replaces the replica wholesale.
func (s *Service) merge(ctx context.Context, reply []api.LogEntry, coversStart bool, result *Result) (bool, error) {
	local, err := s.store.Entries(ctx, s.gameID)
	if err != nil {
		return false, fmt.Errorf("failed to read local log: %w", err)
	}

	byTimestamp := make(map[int64]int, len(reply))
	for i, entry := range reply {
		byTimestamp[entry.Timestamp] = i
	}

	// Сканируем реплику от новых к старым в поисках точного совпадения
	for i := len(local) - 1; i >= 0; i-- {
		j, ok := byTimestamp[local[i].Timestamp]
		if !ok || string(reply[j].Payload) != string(local[i].Payload) {
			continue
		}

		// Всё локальное после совпадения — дивергентный суффикс
		if i < len(local)-1 {
			if err := s.store.TruncateAfter(ctx, s.gameID, local[i].Timestamp); err != nil {
				return false, fmt.Errorf("failed to truncate divergent suffix: %w", err)
			}
			result.Truncated = true
		}

		if err := s.append(ctx, reply[j+1:]); err != nil {
			return false, err
		}
		result.Applied += len(reply) - j - 1
		return true, nil
	}

	if !coversStart {
		return false, nil
	}

	// Ответ покрывает весь лог, общих записей нет: серверная копия
	// авторитетна, реплика замещается
	if err := s.store.ReplaceLog(ctx, s.gameID, toModelEntries(s.gameID, reply)); err != nil {
		return false, fmt.Errorf("failed to replace local log: %w", err)
	}
	result.Replaced = len(local) > 0
	result.Applied += len(reply)
	return true, nil
}

func (s *Service) append(ctx context.Context, entries []api.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.store.AppendEntries(ctx, s.gameID, toModelEntries(s.gameID, entries)); err != nil {
		return fmt.Errorf("failed to append entries: %w", err)
	}
	return nil
}

func toModelEntries(gameID string, entries []api.LogEntry) []models.LogEntry {
	out := make([]models.LogEntry, len(entries))
	for i, e := range entries {
		out[i] = models.LogEntry{
			GameID:    gameID,
			Timestamp: e.Timestamp,
			Payload:   e.Payload,
		}
	}
	return out
}
