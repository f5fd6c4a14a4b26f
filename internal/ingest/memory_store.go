package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/agnox/producer/internal/store"
)

// MemorySessionStore is the in-process fallback used when the cache is
// unreachable (§9's "Session fallback map" design note): a mutex-guarded
// map with a 4h TTL and a background cleanup timer that never blocks
// process exit.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	logs     map[string]*logEntry
	results  map[string][]store.TestResult
}

type sessionEntry struct {
	session *Session
	expires time.Time
}

type logEntry struct {
	data    string
	expires time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	m := &MemorySessionStore{
		sessions: make(map[string]*sessionEntry),
		logs:     make(map[string]*logEntry),
		results:  make(map[string][]store.TestResult),
	}
	go m.cleanupLoop()
	return m
}

func (m *MemorySessionStore) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		m.mu.Lock()
		for id, e := range m.sessions {
			if now.After(e.expires) {
				delete(m.sessions, id)
			}
		}
		for id, e := range m.logs {
			if now.After(e.expires) {
				delete(m.logs, id)
			}
		}
		m.mu.Unlock()
	}
}

func (m *MemorySessionStore) PutSession(ctx context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = &sessionEntry{session: s, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok || time.Now().After(e.expires) {
		return nil, nil
	}
	return e.session, nil
}

func (m *MemorySessionStore) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sessionID]; ok {
		e.expires = time.Now().Add(ttl)
	}
	return nil
}

func (m *MemorySessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemorySessionStore) AppendLog(ctx context.Context, taskID, chunk string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLogLocked(taskID, chunk, ttl)
	return nil
}

func (m *MemorySessionStore) appendLogLocked(taskID, chunk string, ttl time.Duration) {
	e, ok := m.logs[taskID]
	if !ok {
		e = &logEntry{}
		m.logs[taskID] = e
	}
	e.data += chunk
	e.expires = time.Now().Add(ttl)
}

// ApplyEventBatch mirrors RedisSessionStore's single-round-trip contract: a
// single critical section for the whole batch rather than one lock/unlock
// per event.
func (m *MemorySessionStore) ApplyEventBatch(ctx context.Context, taskID, sessionID string, batch EventBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.LogChunk != "" {
		m.appendLogLocked(taskID, batch.LogChunk, batch.LogTTL)
	}
	m.results[sessionID] = append(m.results[sessionID], batch.Results...)
	if e, ok := m.sessions[sessionID]; ok {
		e.expires = time.Now().Add(batch.SessionTTL)
	}
	return nil
}

func (m *MemorySessionStore) DrainLog(ctx context.Context, taskID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.logs[taskID]
	if !ok {
		return "", nil
	}
	return e.data, nil
}

func (m *MemorySessionStore) DeleteLog(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, taskID)
	return nil
}

func (m *MemorySessionStore) PushResult(ctx context.Context, sessionID string, result store.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sessionID] = append(m.results[sessionID], result)
	return nil
}

func (m *MemorySessionStore) DrainResults(ctx context.Context, sessionID string) ([]store.TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.TestResult{}, m.results[sessionID]...), nil
}

func (m *MemorySessionStore) DeleteResults(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, sessionID)
	return nil
}
