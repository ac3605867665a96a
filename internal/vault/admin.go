package vault

import (
	"fmt"
	"math/big"
)

// SetCapacity raises or lowers the total custodial capacity. Admin-gated.
// The new capacity must stay strictly above funds already committed so an
// admin action can never push the ledger over its own cap.
func (v *Vault) SetCapacity(caller Address, newCapacity *big.Int) error {
	if !v.access.IsAdmin(caller) {
		return fmt.Errorf("set capacity by %s: %w", caller, ErrNotAuthorized)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if newCapacity == nil || newCapacity.Cmp(v.total) <= 0 {
		return fmt.Errorf("new capacity %s with %s deposited: %w", newCapacity, v.total, ErrInvalidCapacity)
	}
	if err := v.store.SetCapacity(newCapacity); err != nil {
		return fmt.Errorf("persist capacity: %w", err)
	}
	v.limits.Capacity = new(big.Int).Set(newCapacity)
	v.notifier.CapacityUpdated(newCapacity)
	v.log.Info().Str("capacity", newCapacity.String()).Str("by", string(caller)).Msg("capacity updated")
	return nil
}

// SetWithdrawalCeiling updates the per-withdrawal ceiling. Admin-gated.
func (v *Vault) SetWithdrawalCeiling(caller Address, newCeiling *big.Int) error {
	if !v.access.IsAdmin(caller) {
		return fmt.Errorf("set ceiling by %s: %w", caller, ErrNotAuthorized)
	}
	if newCeiling == nil || newCeiling.Sign() <= 0 {
		return fmt.Errorf("new ceiling %s: %w", newCeiling, ErrInvalidAmount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.SetWithdrawalCeiling(newCeiling); err != nil {
		return fmt.Errorf("persist ceiling: %w", err)
	}
	v.limits.WithdrawalCeiling = new(big.Int).Set(newCeiling)
	v.notifier.ThresholdUpdated(newCeiling)
	v.log.Info().Str("ceiling", newCeiling.String()).Str("by", string(caller)).Msg("withdrawal ceiling updated")
	return nil
}

// GrantAdmin adds an identity to the admin role. Super-admin-gated only, so
// an ordinary admin cannot escalate others or itself.
func (v *Vault) GrantAdmin(caller, id Address) error {
	if !v.access.IsSuperAdmin(caller) {
		return fmt.Errorf("grant admin by %s: %w", caller, ErrNotAuthorized)
	}
	if id == ZeroAddress {
		return fmt.Errorf("grant admin: %w", ErrInvalidAddress)
	}
	if err := v.access.GrantAdmin(id); err != nil {
		return fmt.Errorf("grant admin %s: %w", id, err)
	}
	v.notifier.AdminGranted(id)
	v.log.Info().Str("identity", string(id)).Msg("admin granted")
	return nil
}

// RevokeAdmin removes an identity from the admin role. Super-admin-gated.
func (v *Vault) RevokeAdmin(caller, id Address) error {
	if !v.access.IsSuperAdmin(caller) {
		return fmt.Errorf("revoke admin by %s: %w", caller, ErrNotAuthorized)
	}
	if id == ZeroAddress {
		return fmt.Errorf("revoke admin: %w", ErrInvalidAddress)
	}
	if err := v.access.RevokeAdmin(id); err != nil {
		return fmt.Errorf("revoke admin %s: %w", id, err)
	}
	v.notifier.AdminRevoked(id)
	v.log.Info().Str("identity", string(id)).Msg("admin revoked")
	return nil
}
