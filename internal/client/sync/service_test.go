package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/turnkeeper/internal/models"
)

const testGameID = "aa11"

// fakeServer отвечает на request-log хвостом своего лога
type fakeServer struct {
	log      []api.LogEntry
	requests []int
}

func (f *fakeServer) RequestLog(ctx context.Context, n int) ([]api.LogEntry, error) {
	f.requests = append(f.requests, n)
	if n <= 0 || n >= len(f.log) {
		return f.log, nil
	}
	return f.log[len(f.log)-n:], nil
}

func serverLog(n int) []api.LogEntry {
	entries := make([]api.LogEntry, n)
	for i := range entries {
		entries[i] = api.LogEntry{
			Timestamp: int64(i + 1),
			Payload:   []byte(fmt.Sprintf(`{"n":%d}`, i+1)),
		}
	}
	return entries
}

func setupService(t *testing.T) (*Service, *boltdb.Storage) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, store, testGameID), store
}

func seedLocal(t *testing.T, store *boltdb.Storage, entries []api.LogEntry) {
	t.Helper()

	local := make([]models.LogEntry, len(entries))
	for i, e := range entries {
		local[i] = models.LogEntry{GameID: testGameID, Timestamp: e.Timestamp, Payload: e.Payload}
	}
	require.NoError(t, store.AppendEntries(context.Background(), testGameID, local))
}

func assertLocalEquals(t *testing.T, store *boltdb.Storage, want []api.LogEntry) {
	t.Helper()

	local, err := store.Entries(context.Background(), testGameID)
	require.NoError(t, err)
	require.Len(t, local, len(want))
	for i := range want {
		assert.Equal(t, want[i].Timestamp, local[i].Timestamp)
		assert.Equal(t, []byte(want[i].Payload), local[i].Payload)
	}
}

func TestApplyWindow_ContinuousAppend(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	full := serverLog(4)
	seedLocal(t, store, full[:3])

	// Окно [3,4] перекрывает локальный tip записью 3
	ok, err := s.ApplyWindow(ctx, full[2:])
	require.NoError(t, err)
	assert.True(t, ok)
	assertLocalEquals(t, store, full)
}

func TestApplyWindow_EmptyReplica(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	full := serverLog(2)

	// Окно с начала лога применимо к пустой реплике
	ok, err := s.ApplyWindow(ctx, full)
	require.NoError(t, err)
	assert.True(t, ok)
	assertLocalEquals(t, store, full)
}

func TestApplyWindow_EmptyReplicaMidLog(t *testing.T) {
	ctx := context.Background()
	s, _ := setupService(t)

	full := serverLog(6)

	// Окно [5,6] без локальной истории требует reconciliation
	ok, err := s.ApplyWindow(ctx, full[4:])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyWindow_Gap(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	full := serverLog(6)
	seedLocal(t, store, full[:3])

	// Локальный tip 3, окно [5,6] — пропущена запись 4
	ok, err := s.ApplyWindow(ctx, full[4:])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyWindow_Divergence(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	full := serverLog(4)
	diverged := append([]api.LogEntry{}, full[:2]...)
	diverged = append(diverged, api.LogEntry{Timestamp: 3, Payload: []byte(`{"rogue":true}`)})
	seedLocal(t, store, diverged)

	// Timestamp 3 совпадает, payload — нет
	ok, err := s.ApplyWindow(ctx, full[2:])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReconcile_CatchUp(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	server := &fakeServer{log: serverLog(6)}
	seedLocal(t, store, server.log[:4])

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	// Первый же запрос (2*TailWindow = 4) покрывает совпадение
	assert.Equal(t, []int{4}, server.requests)
	assert.Equal(t, 2, result.Applied)
	assert.False(t, result.Truncated)
	assert.False(t, result.Replaced)
	assertLocalEquals(t, store, server.log)
}

func TestReconcile_DivergentSuffix(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	server := &fakeServer{log: serverLog(4)}
	diverged := append([]api.LogEntry{}, server.log[:2]...)
	diverged = append(diverged, api.LogEntry{Timestamp: 3, Payload: []byte(`{"rogue":true}`)})
	seedLocal(t, store, diverged)

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.False(t, result.Replaced)
	assertLocalEquals(t, store, server.log)
}

func TestReconcile_WideningFromBehind(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	// Реплика сильно позади: tip 2, сервер дорос до 12
	server := &fakeServer{log: serverLog(12)}
	seedLocal(t, store, server.log[:2])

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	// 4 записей мало (хвост [9..12]), 8 мало ([5..12]), 16 покрывает всё
	assert.Equal(t, []int{4, 8, 16}, server.requests)
	assert.Equal(t, 10, result.Applied)
	assert.False(t, result.Replaced)
	assertLocalEquals(t, store, server.log)
}

func TestReconcile_FullReplace(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	// Локальная реплика не имеет ничего общего с серверным логом
	server := &fakeServer{log: serverLog(3)}
	seedLocal(t, store, []api.LogEntry{
		{Timestamp: 1, Payload: []byte(`{"rogue":1}`)},
		{Timestamp: 2, Payload: []byte(`{"rogue":2}`)},
	})

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	assert.True(t, result.Replaced)
	assert.Equal(t, 3, result.Applied)
	assertLocalEquals(t, store, server.log)
}

func TestReconcile_EmptyReplica(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	server := &fakeServer{log: serverLog(5)}

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Applied)
	assert.False(t, result.Replaced)
	assertLocalEquals(t, store, server.log)
}

func TestReconcile_LocalAheadOfServer(t *testing.T) {
	ctx := context.Background()
	s, store := setupService(t)

	// Реплика знает больше, чем сервер (невозможное в норме состояние):
	// серверная копия авторитетна, лишний хвост отбрасывается
	server := &fakeServer{log: serverLog(2)}
	seedLocal(t, store, serverLog(3))

	result, err := s.Reconcile(ctx, server)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assertLocalEquals(t, store, server.log)
}
