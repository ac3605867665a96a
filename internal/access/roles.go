// Package access implements the capability map gating administrative
// operations: one immutable super-admin plus a mutable admin set.
package access

import (
	"fmt"
	"sync"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

// Store persists admin role membership.
type Store interface {
	PutAdmin(id vault.Address) error
	DeleteAdmin(id vault.Address) error
}

type nopStore struct{}

func (nopStore) PutAdmin(vault.Address) error    { return nil }
func (nopStore) DeleteAdmin(vault.Address) error { return nil }

// NopStore discards role persistence; for tests and ephemeral runs.
func NopStore() Store { return nopStore{} }

// Roles is the in-memory role set backed by a Store.
type Roles struct {
	mu     sync.RWMutex
	super  vault.Address
	admins map[vault.Address]struct{}
	store  Store
}

// New builds a role set with the given super-admin and initial admins.
func New(super vault.Address, admins []vault.Address, store Store) (*Roles, error) {
	if super == vault.ZeroAddress {
		return nil, fmt.Errorf("super admin: %w", vault.ErrInvalidAddress)
	}
	if store == nil {
		store = NopStore()
	}
	r := &Roles{super: super, admins: make(map[vault.Address]struct{}, len(admins)), store: store}
	for _, id := range admins {
		if id != vault.ZeroAddress {
			r.admins[id] = struct{}{}
		}
	}
	return r, nil
}

// IsSuperAdmin reports whether id holds the super-admin capability.
func (r *Roles) IsSuperAdmin(id vault.Address) bool {
	return id == r.super
}

// IsAdmin reports whether id holds the admin role. The super-admin counts.
func (r *Roles) IsAdmin(id vault.Address) bool {
	if id == r.super {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[id]
	return ok
}

// GrantAdmin adds id to the admin set, persisting first.
func (r *Roles) GrantAdmin(id vault.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.PutAdmin(id); err != nil {
		return fmt.Errorf("persist admin grant: %w", err)
	}
	r.admins[id] = struct{}{}
	return nil
}

// RevokeAdmin removes id from the admin set, persisting first.
func (r *Roles) RevokeAdmin(id vault.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.DeleteAdmin(id); err != nil {
		return fmt.Errorf("persist admin revoke: %w", err)
	}
	delete(r.admins, id)
	return nil
}

// Admins returns a copy of the current admin set.
func (r *Roles) Admins() []vault.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vault.Address, 0, len(r.admins))
	for id := range r.admins {
		out = append(out, id)
	}
	return out
}
