package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roxdxebec/jenga-biz/internal/domain"
)

type memoryUser struct {
	identity     domain.Identity
	passwordHash []byte
}

// MemoryProvider is an in-process identity provider for local development
// and tests. It is refused in production by config validation.
type MemoryProvider struct {
	mu      sync.RWMutex
	byID    map[string]*memoryUser
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		byID:    make(map[string]*memoryUser),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Seed adds a user with a fixed id, replacing any user with the same email.
func (m *MemoryProvider) Seed(id, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	email = strings.ToLower(strings.TrimSpace(email))

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byEmail[email]; ok {
		delete(m.byID, prev)
	}
	m.byID[id] = &memoryUser{
		identity:     domain.Identity{ID: id, Email: email, CreatedAt: m.now()},
		passwordHash: hash,
	}
	m.byEmail[email] = id
	return nil
}

func (m *MemoryProvider) CreateUser(_ context.Context, in domain.NewIdentity) (*domain.Identity, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[email]; exists {
		return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}
	user := &memoryUser{
		identity: domain.Identity{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  in.Metadata,
			CreatedAt: m.now(),
		},
		passwordHash: hash,
	}
	m.byID[user.identity.ID] = user
	m.byEmail[email] = user.identity.ID
	out := user.identity
	return &out, nil
}

func (m *MemoryProvider) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.byEmail, user.identity.Email)
	delete(m.byID, id)
	return nil
}

func (m *MemoryProvider) GetUser(_ context.Context, id string) (*domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := user.identity
	return &out, nil
}

// Authenticate verifies credentials and returns the identity
func (m *MemoryProvider) Authenticate(_ context.Context, email, password string) (*domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	user := m.byID[id]
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		return nil, domain.ErrUnauthenticated
	}
	out := user.identity
	return &out, nil
}
