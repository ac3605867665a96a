package chain

import (
	"sync"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

// Chain bundles the bank and the venue behind one atomic execution boundary.
type Chain struct {
	mu   sync.Mutex
	Bank *Bank
	AMM  *AMM
}

// New builds a chain around a fresh bank and venue.
func New(wrappedNative vault.Address) *Chain {
	bank := NewBank(wrappedNative)
	return &Chain{Bank: bank, AMM: NewAMM(bank)}
}

// Atomically runs fn as one indivisible unit: if fn fails, bank balances and
// pool reserves are restored to their pre-call values. Calls do not nest.
func (c *Chain) Atomically(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bankSnap := c.Bank.snapshot()
	poolSnap := c.AMM.snapshot()
	if err := fn(); err != nil {
		c.Bank.restore(bankSnap)
		c.AMM.restore(poolSnap)
		return err
	}
	return nil
}
