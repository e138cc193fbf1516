package refreshtoken

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/predio-auth/internal/model"
	"github.com/iliyamo/predio-auth/internal/utils"
)

// Memory is an in-process Registry.  Records do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]model.RefreshToken  // token hash -> record
	byUser map[string]map[string]struct{} // username -> token hashes
	ttl    time.Duration
	now    func() time.Time
}

// NewMemory returns an empty registry issuing tokens valid for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		tokens: make(map[string]model.RefreshToken),
		byUser: make(map[string]map[string]struct{}),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Create(_ context.Context, username string) (string, error) {
	raw, err := utils.NewRefreshTokenValue()
	if err != nil {
		return "", err
	}
	now := m.now().UTC()
	rec := model.RefreshToken{
		TokenHash: utils.HashRefreshRaw(raw),
		Username:  username,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	m.mu.Lock()
	m.tokens[rec.TokenHash] = rec
	set, ok := m.byUser[username]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[username] = set
	}
	set[rec.TokenHash] = struct{}{}
	m.mu.Unlock()
	return raw, nil
}

func (m *Memory) Validate(ctx context.Context, token string) (bool, error) {
	_, err := m.UsernameFor(ctx, token)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) UsernameFor(_ context.Context, token string) (string, error) {
	hash := utils.HashRefreshRaw(token)

	m.mu.RLock()
	rec, ok := m.tokens[hash]
	m.mu.RUnlock()
	if !ok {
		return "", ErrRefreshTokenInvalid
	}
	if rec.Expired(m.now()) {
		m.mu.Lock()
		m.deleteLocked(hash)
		m.mu.Unlock()
		return "", ErrRefreshTokenExpired
	}
	return rec.Username, nil
}

func (m *Memory) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	m.deleteLocked(utils.HashRefreshRaw(token))
	m.mu.Unlock()
	return nil
}

func (m *Memory) RevokeAll(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash := range m.byUser[username] {
		delete(m.tokens, hash)
	}
	delete(m.byUser, username)
	return nil
}

func (m *Memory) SweepExpired(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for hash, rec := range m.tokens {
		if rec.Expired(now) {
			m.deleteLocked(hash)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountActive(_ context.Context, username string) (int, error) {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for hash := range m.byUser[username] {
		if !m.tokens[hash].Expired(now) {
			n++
		}
	}
	return n, nil
}

// deleteLocked removes hash from both indexes.  m.mu must be held.
func (m *Memory) deleteLocked(hash string) {
	rec, ok := m.tokens[hash]
	if !ok {
		return
	}
	delete(m.tokens, hash)
	if set := m.byUser[rec.Username]; set != nil {
		delete(set, hash)
		if len(set) == 0 {
			delete(m.byUser, rec.Username)
		}
	}
}
