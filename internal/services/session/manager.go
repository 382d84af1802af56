package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// Eviction policies for the node-local session cache
const (
	NeverEvict         = -1
	EvictOnSessionExit = 0
)

// Session is the clustered session state. The shared Redis copy is
// authoritative; nodes only keep resident copies.
type Session struct {
	ID           string         `json:"id"`
	Attributes   map[string]int `json:"attributes"`
	CreatedAt    int64          `json:"created_at"`
	LastAccessed int64          `json:"last_accessed"`
}

type resident struct {
	session  *Session
	lastUsed time.Time
}

// Manager keeps sessions in a Redis cache shared by every node of the cluster
type Manager struct {
	cache          *redis.Client
	maxInterval    time.Duration
	evictionPolicy int

	mu        sync.Mutex
	residents map[string]*resident
	now       func() time.Time
}

// NewManager creates a session manager. maxInterval <= 0 keeps sessions until
// invalidated; evictionPolicy is NeverEvict, EvictOnSessionExit or an idle time
// in seconds after which the local copy is dropped.
func NewManager(cache *redis.Client, maxInterval time.Duration, evictionPolicy int) *Manager {
	return &Manager{
		cache:          cache,
		maxInterval:    maxInterval,
		evictionPolicy: evictionPolicy,
		residents:      make(map[string]*resident),
		now:            time.Now,
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Create starts a new session and stores it in the shared cache
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:         uuid.NewString(),
		Attributes: make(map[string]int),
		CreatedAt:  now.UnixMilli(),
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	fiberlog.Debugf("[SESSION] Created %s", s.ID)
	return s, nil
}

// Get loads a session from the shared cache. It returns nil without error
// when the session expired or was invalidated on any node.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	data, err := m.cache.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		m.evict(id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]int)
	}

	m.mu.Lock()
	m.residents[id] = &resident{session: &s, lastUsed: m.now()}
	m.mu.Unlock()

	return &s, nil
}

// Save writes s back to the shared cache and refreshes its expiry
func (m *Manager) Save(ctx context.Context, s *Session) error {
	now := m.now()
	s.LastAccessed = now.UnixMilli()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	ttl := m.maxInterval
	if ttl < 0 {
		ttl = 0
	}
	if err := m.cache.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	m.residents[s.ID] = &resident{session: s, lastUsed: now}
	m.mu.Unlock()
	return nil
}

// Invalidate removes the session from the cluster
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	if err := m.cache.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session %s: %w", id, err)
	}
	m.evict(id)
	fiberlog.Debugf("[SESSION] Invalidated %s", id)
	return nil
}

// Release marks the end of a request that used the session
func (m *Manager) Release(id string) {
	if m.evictionPolicy == EvictOnSessionExit {
		m.evict(id)
	}
}

// Resident returns how many sessions this node holds locally
func (m *Manager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.residents)
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	delete(m.residents, id)
	m.mu.Unlock()
}

// Scavenge drops local copies that expired, were idle past the eviction
// policy, or no longer exist in the shared cache. It returns how many were
// dropped.
func (m *Manager) Scavenge(ctx context.Context) int {
	now := m.now()
	dropped := 0

	m.mu.Lock()
	candidates := make([]string, 0, len(m.residents))
	for id, r := range m.residents {
		expired := m.maxInterval > 0 && now.Sub(time.UnixMilli(r.session.LastAccessed)) > m.maxInterval
		idle := m.evictionPolicy > 0 && now.Sub(r.lastUsed) > time.Duration(m.evictionPolicy)*time.Second
		if expired || idle {
			delete(m.residents, id)
			dropped++
			continue
		}
		candidates = append(candidates, id)
	}
	m.mu.Unlock()

	for _, id := range candidates {
		n, err := m.cache.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			fiberlog.Warnf("[SESSION] Scavenger could not check %s: %v", id, err)
			continue
		}
		if n == 0 {
			m.evict(id)
			dropped++
		}
	}

	return dropped
}
