package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/turnkeeper/pkg/api"

	"github.com/iudanet/turnkeeper/internal/ruleset"
	"github.com/iudanet/turnkeeper/internal/server/registry"
	"github.com/iudanet/turnkeeper/internal/server/storage/sqlite"
)

// fakeTransport — транспорт на каналах для тестов протокола
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case <-f.closed:
		return nil, io.EOF
	case data := <-f.in:
		return data, nil
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return io.EOF
	case f.out <- data:
		return nil
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func setupEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger, store, store)
	return New(logger, reg, store, ruleset.NewService(store), cfg)
}

// testClient гоняет HandleConn над fakeTransport
type testClient struct {
	t    *testing.T
	tr   *fakeTransport
	done chan struct{}
}

func dial(t *testing.T, e *Engine, authClientID string) *testClient {
	t.Helper()

	c := &testClient{t: t, tr: newFakeTransport(), done: make(chan struct{})}
	go func() {
		e.HandleConn(context.Background(), c.tr, authClientID)
		close(c.done)
	}()

	t.Cleanup(func() {
		_ = c.tr.Close()
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			t.Error("connection handler did not stop")
		}
	})

	return c
}

func (c *testClient) send(msg any) {
	c.t.Helper()

	data, err := api.Encode(msg)
	require.NoError(c.t, err)
	c.sendRaw(data)
}

func (c *testClient) sendRaw(data []byte) {
	c.t.Helper()

	select {
	case c.tr.in <- data:
	case <-time.After(time.Second):
		c.t.Fatal("send timed out")
	}
}

func (c *testClient) recv() any {
	c.t.Helper()

	select {
	case data := <-c.tr.out:
		msg, err := api.Decode(data)
		require.NoError(c.t, err)
		return msg
	case <-time.After(2 * time.Second):
		c.t.Fatal("recv timed out")
		return nil
	}
}

func (c *testClient) recvLog() api.Log {
	c.t.Helper()

	msg := c.recv()
	logMsg, ok := msg.(api.Log)
	require.True(c.t, ok, "expected log, got %T", msg)
	return logMsg
}

func (c *testClient) recvError() api.Error {
	c.t.Helper()

	msg := c.recv()
	errMsg, ok := msg.(api.Error)
	require.True(c.t, ok, "expected error, got %T", msg)
	return errMsg
}

func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()

	select {
	case data := <-c.tr.out:
		c.t.Fatalf("unexpected message: %s", data)
	case <-time.After(d):
	}
}

func (c *testClient) handshake(clientID, gameID, rulesetHash string) api.Attached {
	c.t.Helper()

	c.send(api.Hello{ClientID: clientID, GameID: gameID, RulesetHash: rulesetHash})
	msg := c.recv()
	att, ok := msg.(api.Attached)
	require.True(c.t, ok, "expected attached, got %T", msg)
	return att
}

func TestEngine_Handshake(t *testing.T) {
	e := setupEngine(t, Config{})
	c := dial(t, e, "")

	att := c.handshake("alice", "beef01", "")
	assert.NotEmpty(t, att.SessionID)
	assert.Equal(t, "beef01", att.GameID)
	assert.Empty(t, att.RulesetHash)
}

func TestEngine_Handshake_RequiresHello(t *testing.T) {
	e := setupEngine(t, Config{})
	c := dial(t, e, "")

	c.send(api.Event{Payload: json.RawMessage(`{}`)})
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeProtocol, errMsg.Code)

	// Ошибка протокола не фатальна: handshake все еще возможен
	att := c.handshake("alice", "beef01", "")
	assert.NotEmpty(t, att.SessionID)
}

func TestEngine_Handshake_InvalidIDs(t *testing.T) {
	e := setupEngine(t, Config{})

	tests := []struct {
		name  string
		hello api.Hello
	}{
		{
			name:  "bad game id",
			hello: api.Hello{ClientID: "alice", GameID: "not hex!"},
		},
		{
			name:  "empty client id",
			hello: api.Hello{ClientID: "", GameID: "beef01"},
		},
		{
			name:  "bad ruleset hash",
			hello: api.Hello{ClientID: "alice", GameID: "beef01", RulesetHash: "deadbeef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, e, "")
			c.send(tt.hello)
			errMsg := c.recvError()
			assert.Equal(t, api.ErrorCodeProtocol, errMsg.Code)
		})
	}
}

func TestEngine_Handshake_TokenMismatch(t *testing.T) {
	e := setupEngine(t, Config{})
	c := dial(t, e, "alice")

	c.send(api.Hello{ClientID: "bob", GameID: "beef01"})
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeProtocol, errMsg.Code)

	// Несовпадение с токеном закрывает соединение
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func TestEngine_EventBroadcast(t *testing.T) {
	e := setupEngine(t, Config{})
	a := dial(t, e, "")
	b := dial(t, e, "")
	a.handshake("alice", "beef01", "")
	b.handshake("bob", "beef01", "")

	// Первый append: окно из одной записи всем, включая отправителя
	a.send(api.Event{Payload: json.RawMessage(`{"move":"e4"}`)})
	for _, c := range []*testClient{a, b} {
		window := c.recvLog()
		require.Len(t, window.Entries, 1)
		assert.Equal(t, int64(1), window.Entries[0].Timestamp)
		assert.JSONEq(t, `{"move":"e4"}`, string(window.Entries[0].Payload))
	}

	// Второй append: окно покрывает два последних timestamp
	b.send(api.Event{Payload: json.RawMessage(`{"move":"e5"}`)})
	for _, c := range []*testClient{a, b} {
		window := c.recvLog()
		require.Len(t, window.Entries, 2)
		assert.Equal(t, int64(1), window.Entries[0].Timestamp)
		assert.Equal(t, int64(2), window.Entries[1].Timestamp)
	}
}

func TestEngine_SessionIsolation(t *testing.T) {
	e := setupEngine(t, Config{})
	a := dial(t, e, "")
	b := dial(t, e, "")
	a.handshake("alice", "aa11", "")
	b.handshake("bob", "bb22", "")

	a.send(api.Event{Payload: json.RawMessage(`{"move":"e4"}`)})
	a.recvLog()

	// Событие чужой игры не пересекает границу сессии
	b.expectSilence(100 * time.Millisecond)
}

func TestEngine_RequestLog(t *testing.T) {
	e := setupEngine(t, Config{MaxLogRequest: 3})
	c := dial(t, e, "")
	c.handshake("alice", "beef01", "")

	for i := 1; i <= 5; i++ {
		c.send(api.Event{Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))})
		c.recvLog()
	}

	// Хвост из двух записей
	c.send(api.RequestLog{GameID: "beef01", N: 2})
	reply := c.recvLog()
	require.Len(t, reply.Entries, 2)
	assert.Equal(t, int64(4), reply.Entries[0].Timestamp)
	assert.Equal(t, int64(5), reply.Entries[1].Timestamp)

	// n == 0 — весь лог
	c.send(api.RequestLog{N: 0})
	reply = c.recvLog()
	require.Len(t, reply.Entries, 5)
	assert.Equal(t, int64(1), reply.Entries[0].Timestamp)

	// Запрос шире лимита отвечается полным логом
	c.send(api.RequestLog{N: 100})
	reply = c.recvLog()
	assert.Len(t, reply.Entries, 5)
}

func TestEngine_RequestLog_WrongGame(t *testing.T) {
	e := setupEngine(t, Config{})
	c := dial(t, e, "")
	c.handshake("alice", "beef01", "")

	c.send(api.RequestLog{GameID: "ffff", N: 2})
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeProtocol, errMsg.Code)
}

func TestEngine_RulesetNegotiation(t *testing.T) {
	e := setupEngine(t, Config{})
	doc := []byte("pawns move forward one square\n")
	hash := ruleset.Hash(doc)

	// Неизвестная версия: сервер запрашивает документ до завершения
	// handshake
	a := dial(t, e, "")
	a.send(api.Hello{ClientID: "alice", GameID: "beef01", RulesetHash: hash})
	req, ok := a.recv().(api.RequestRuleset)
	require.True(t, ok)
	assert.Equal(t, hash, req.Hash)

	a.send(api.Ruleset{Hash: hash, Document: doc})
	att, ok := a.recv().(api.Attached)
	require.True(t, ok)
	assert.Equal(t, hash, att.RulesetHash)

	// Клиент без версии догоняется полным документом после attached
	b := dial(t, e, "")
	att2 := b.handshake("bob", "beef01", "")
	assert.Equal(t, hash, att2.RulesetHash)

	push, ok := b.recv().(api.Ruleset)
	require.True(t, ok)
	assert.Equal(t, hash, push.Hash)
	assert.Equal(t, doc, push.Document)
}

func TestEngine_RulesetNegotiation_HashMismatch(t *testing.T) {
	e := setupEngine(t, Config{})
	doc := []byte("pawns move forward one square\n")
	claimed := ruleset.Hash([]byte("some other document"))

	c := dial(t, e, "")
	c.send(api.Hello{ClientID: "alice", GameID: "beef01", RulesetHash: claimed})
	_, ok := c.recv().(api.RequestRuleset)
	require.True(t, ok)

	// Документ не подтверждает заявленный хеш: версия отвергнута,
	// подключение завершается без собственной версии
	c.send(api.Ruleset{Hash: claimed, Document: doc})
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeHashMismatch, errMsg.Code)

	att, ok := c.recv().(api.Attached)
	require.True(t, ok)
	assert.Empty(t, att.RulesetHash)
}

func TestEngine_RulesetPush_NewerWins(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, Config{})

	doc1 := []byte("pawns move forward one square\n")
	doc2 := []byte("pawns move forward one square, two on the first move\n")
	h1, err := e.rulesets.Save(ctx, "", doc1)
	require.NoError(t, err)

	a := dial(t, e, "")
	b := dial(t, e, "")
	att := a.handshake("alice", "beef01", h1)
	assert.Equal(t, h1, att.RulesetHash)
	b.handshake("bob", "beef01", h1)

	// Новая версия сохраняется позже — выигрывает и рассылается диффом
	time.Sleep(2 * time.Millisecond)
	h2 := ruleset.Hash(doc2)
	b.send(api.Ruleset{Hash: h2, Document: doc2})

	patch, ok := a.recv().(api.RulesetPatch)
	require.True(t, ok)
	assert.Equal(t, h1, patch.OldHash)
	assert.Equal(t, h2, patch.NewHash)
	assert.Equal(t, "beef01", patch.GameID)

	// Инициатор адопции ничего не получает
	b.expectSilence(100 * time.Millisecond)

	// Новые клиенты видят новую авторитетную версию
	c := dial(t, e, "")
	att2 := c.handshake("carol", "beef01", "")
	assert.Equal(t, h2, att2.RulesetHash)
}

func TestEngine_RulesetPush_OlderLoses(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, Config{})

	docOld := []byte("old rules\n")
	docNew := []byte("new rules\n")
	hOld, err := e.rulesets.Save(ctx, "", docOld)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	a := dial(t, e, "")
	a.handshake("alice", "beef01", "")
	hNew := ruleset.Hash(docNew)
	a.send(api.Ruleset{Hash: hNew, Document: docNew})

	// Барьер: сообщения одного соединения обрабатываются по порядку,
	// ответ на запрос гарантирует, что push принят
	a.send(api.RequestRuleset{Hash: hNew})
	_, ok := a.recv().(api.Ruleset)
	require.True(t, ok)

	// Клиент со старой известной версией: сервер выигрывает и догоняет
	// его диффом от его же версии
	b := dial(t, e, "")
	att := b.handshake("bob", "beef01", hOld)
	assert.Equal(t, hNew, att.RulesetHash)

	patch, ok := b.recv().(api.RulesetPatch)
	require.True(t, ok)
	assert.Equal(t, hOld, patch.OldHash)
	assert.Equal(t, hNew, patch.NewHash)
}

func TestEngine_RulesetPatch(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, Config{})

	doc1 := []byte("section one\n")
	doc2 := []byte("section one\nsection two\n")
	h1, err := e.rulesets.Save(ctx, "", doc1)
	require.NoError(t, err)

	a := dial(t, e, "")
	b := dial(t, e, "")
	a.handshake("alice", "beef01", h1)
	b.handshake("bob", "beef01", h1)
	time.Sleep(2 * time.Millisecond)

	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake(string(doc1), string(doc2)))
	h2 := ruleset.Hash(doc2)

	a.send(api.RulesetPatch{GameID: "beef01", OldHash: h1, NewHash: h2, Patch: patchText})

	// Остальные участники сессии получают тот же дифф
	patch, ok := b.recv().(api.RulesetPatch)
	require.True(t, ok)
	assert.Equal(t, h1, patch.OldHash)
	assert.Equal(t, h2, patch.NewHash)
	a.expectSilence(100 * time.Millisecond)
}

func TestEngine_RulesetPatch_Mismatch(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, Config{})

	doc1 := []byte("section one\n")
	doc2 := []byte("section one\nsection two\n")
	h1, err := e.rulesets.Save(ctx, "", doc1)
	require.NoError(t, err)

	a := dial(t, e, "")
	a.handshake("alice", "beef01", h1)

	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake(string(doc1), string(doc2)))
	wrong := ruleset.Hash([]byte("unrelated"))

	a.send(api.RulesetPatch{GameID: "beef01", OldHash: h1, NewHash: wrong, Patch: patchText})
	errMsg := a.recvError()
	assert.Equal(t, api.ErrorCodePatchMismatch, errMsg.Code)

	// Авторитетная версия сессии не изменилась
	b := dial(t, e, "")
	att := b.handshake("bob", "beef01", "")
	assert.Equal(t, h1, att.RulesetHash)
}

func TestEngine_RequestRuleset(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, Config{})

	doc := []byte("rules\n")
	hash, err := e.rulesets.Save(ctx, "", doc)
	require.NoError(t, err)

	// Версия сохранена в store, но сессией не принята: push после
	// attached не ожидается
	c := dial(t, e, "")
	c.handshake("alice", "beef01", "")

	c.send(api.RequestRuleset{Hash: hash})
	rs, ok := c.recv().(api.Ruleset)
	require.True(t, ok)
	assert.Equal(t, hash, rs.Hash)
	assert.Equal(t, doc, rs.Document)

	c.send(api.RequestRuleset{Hash: ruleset.Hash([]byte("missing"))})
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeNotFound, errMsg.Code)
}

func TestEngine_MalformedFrame(t *testing.T) {
	e := setupEngine(t, Config{})
	c := dial(t, e, "")
	c.handshake("alice", "beef01", "")

	c.sendRaw([]byte("{not json"))
	errMsg := c.recvError()
	assert.Equal(t, api.ErrorCodeProtocol, errMsg.Code)

	// Соединение переживает некорректный кадр
	c.send(api.RequestLog{N: 1})
	reply := c.recvLog()
	assert.Empty(t, reply.Entries)
}
