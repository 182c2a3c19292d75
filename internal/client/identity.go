package client

import (
	"sync"

	"github.com/google/uuid"

	"example.com/analytics/internal/domain"
)

// Identity is the visitor a client reports for. ClientID is a random per
// device id; UserID is set once the visitor signs in.
type Identity struct {
	mu       sync.RWMutex
	clientID string
	userID   string
}

// NewIdentity returns an anonymous visitor with a fresh client id.
func NewIdentity() *Identity {
	return &Identity{clientID: uuid.NewString()}
}

// IdentifiedAs returns a signed-in visitor with a fresh client id.
func IdentifiedAs(userID string) *Identity {
	id := NewIdentity()
	id.userID = userID
	return id
}

func (i *Identity) SetUserID(userID string) {
	i.mu.Lock()
	i.userID = userID
	i.mu.Unlock()
}

func (i *Identity) ClientID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.clientID
}

func (i *Identity) UserID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.userID
}

func (i *Identity) Anonymous() bool { return i.UserID() == "" }

// apply fills the identity into params without overwriting values the caller set.
func (i *Identity) apply(p *domain.EventParams) {
	if i == nil || p == nil {
		return
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if p.ClientID == "" {
		p.ClientID = i.clientID
	}
	if p.UserID == "" {
		p.UserID = i.userID
	}
}
