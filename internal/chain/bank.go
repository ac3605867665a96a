// Package chain provides the in-process asset bank and constant-product
// venue the daemon runs against, standing in for the external chain. Its
// Atomically runner models atomic-or-nothing execution: a failed operation
// leaves no trace in bank or pool state.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

// ErrInsufficientFunds is returned when a transfer or wrap exceeds the
// source's balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank tracks native and token balances for every party.
type Bank struct {
	mu      sync.Mutex
	wrapped vault.Address
	native  map[vault.Address]*big.Int
	// asset -> owner -> balance
	tokens map[vault.Address]map[vault.Address]*big.Int
}

// NewBank creates an empty bank whose native currency wraps into the given
// token identity.
func NewBank(wrapped vault.Address) *Bank {
	return &Bank{
		wrapped: wrapped,
		native:  make(map[vault.Address]*big.Int),
		tokens:  make(map[vault.Address]map[vault.Address]*big.Int),
	}
}

// WrappedNative returns the wrapper token identity.
func (b *Bank) WrappedNative() vault.Address { return b.wrapped }

// Mint credits amount of asset to owner out of thin air; genesis and tests only.
func (b *Bank) Mint(asset, owner vault.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, owner, amount)
}

// MintNative credits native currency to owner; genesis and tests only.
func (b *Bank) MintNative(owner vault.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.native[owner]
	if !ok {
		bal = new(big.Int)
		b.native[owner] = bal
	}
	bal.Add(bal, amount)
}

// NativeBalanceOf reports owner's native currency balance.
func (b *Bank) NativeBalanceOf(owner vault.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.native[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// BalanceOf reports how much of asset the owner holds.
func (b *Bank) BalanceOf(owner, asset vault.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.tokens[asset][owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Transfer moves amount of asset from one party to another.
func (b *Bank) Transfer(from, to, asset vault.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, from, to, amount)
}

// TransferFrom pulls amount of asset from owner into to's custody. The bank
// treats the vault as pre-approved for any amount the owner holds.
func (b *Bank) TransferFrom(owner, to, asset vault.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(asset, owner, to, amount)
}

// WrapNative converts amount of owner's native balance into the wrapper token.
func (b *Bank) WrapNative(owner vault.Address, amount *big.Int) (vault.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.native[owner]
	if !ok || bal.Cmp(amount) < 0 {
		return vault.ZeroAddress, fmt.Errorf("wrap %s for %s: %w", amount, owner, ErrInsufficientFunds)
	}
	bal.Sub(bal, amount)
	b.credit(b.wrapped, owner, amount)
	return b.wrapped, nil
}

func (b *Bank) move(asset, from, to vault.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("move %v of %s: negative amount", amount, asset)
	}
	src, ok := b.tokens[asset][from]
	if !ok || src.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s of %s from %s: %w", amount, asset, from, ErrInsufficientFunds)
	}
	src.Sub(src, amount)
	b.credit(asset, to, amount)
	return nil
}

func (b *Bank) credit(asset, owner vault.Address, amount *big.Int) {
	owners, ok := b.tokens[asset]
	if !ok {
		owners = make(map[vault.Address]*big.Int)
		b.tokens[asset] = owners
	}
	bal, ok := owners[owner]
	if !ok {
		bal = new(big.Int)
		owners[owner] = bal
	}
	bal.Add(bal, amount)
}

type bankSnapshot struct {
	native map[vault.Address]*big.Int
	tokens map[vault.Address]map[vault.Address]*big.Int
}

func (b *Bank) snapshot() bankSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := bankSnapshot{
		native: make(map[vault.Address]*big.Int, len(b.native)),
		tokens: make(map[vault.Address]map[vault.Address]*big.Int, len(b.tokens)),
	}
	for owner, bal := range b.native {
		snap.native[owner] = new(big.Int).Set(bal)
	}
	for asset, owners := range b.tokens {
		copied := make(map[vault.Address]*big.Int, len(owners))
		for owner, bal := range owners {
			copied[owner] = new(big.Int).Set(bal)
		}
		snap.tokens[asset] = copied
	}
	return snap
}

func (b *Bank) restore(snap bankSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native = snap.native
	b.tokens = snap.tokens
}
