package registry

import "sync"

// Subscriber is one connection attached to a session. Enqueue must not
// block: a subscriber whose outbound queue is full reports false and gets
// kicked instead of stalling the whole session.
type Subscriber interface {
	// ClientID returns the client id bound at handshake
	ClientID() string

	// Enqueue queues an encoded message for delivery, preserving call
	// order. Returns false when the queue is full.
	Enqueue(data []byte) bool

	// Kick asks the connection to close; delivery of the reason is
	// best-effort
	Kick(reason string)
}

// Session binds the clients of one game to its authoritative ruleset
// version and fans broadcasts out to them. It is the unit of isolation:
// messages never cross sessions.
type Session struct {
	id     string
	gameID string

	// mu защищает rulesetHash и подписчиков
	mu          sync.Mutex
	rulesetHash string
	subs        map[string]Subscriber

	// appendMu — пер-игровая секция упорядочивания: append в лог и
	// enqueue broadcast выполняются под одним локом, чтобы ни один
	// подписчик не увидел окна в порядке, отличном от порядка append
	appendMu sync.Mutex
}

func newSession(id, gameID string) *Session {
	return &Session{
		id:     id,
		gameID: gameID,
		subs:   make(map[string]Subscriber),
	}
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// GameID returns the game this session governs
func (s *Session) GameID() string { return s.gameID }

// RulesetHash returns the session's authoritative ruleset hash,
// "" while the session has no ruleset yet
func (s *Session) RulesetHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rulesetHash
}

// SetRulesetHash replaces the session's authoritative ruleset hash
func (s *Session) SetRulesetHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rulesetHash = hash
}

// WithOrdering runs fn under the session's per-game ordering lock.
// The engine wraps append-then-broadcast in it so a later append can never
// be observed by a peer before an earlier one.
func (s *Session) WithOrdering(fn func() error) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	return fn()
}

// Broadcast enqueues data to every subscriber except exceptClientID
// ("" means everyone). Subscribers that cannot keep up are kicked and
// returned so the caller can detach them.
func (s *Session) Broadcast(data []byte, exceptClientID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for clientID, sub := range s.subs {
		if clientID == exceptClientID {
			continue
		}
		if !sub.Enqueue(data) {
			// Переполненная очередь: отключаем, не блокируем сессию
			sub.Kick("outbound queue overflow")
			dropped = append(dropped, clientID)
		}
	}

	for _, clientID := range dropped {
		delete(s.subs, clientID)
	}

	return dropped
}

// Send delivers data to a single subscriber of the session.
// Returns false if the client is not attached or could not be enqueued.
func (s *Session) Send(clientID string, data []byte) bool {
	s.mu.Lock()
	sub, ok := s.subs[clientID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	return sub.Enqueue(data)
}

// SubscriberCount returns the number of attached clients
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) addSubscriber(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ClientID()] = sub
}

func (s *Session) removeSubscriber(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[clientID]; !ok {
		return false
	}
	delete(s.subs, clientID)
	return true
}
