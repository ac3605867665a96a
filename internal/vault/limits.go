package vault

import "math/big"

// Limits holds the two tunable guard-rails: total custodial capacity and the
// per-withdrawal ceiling.
type Limits struct {
	Capacity          *big.Int
	WithdrawalCeiling *big.Int
}

// AllowDeposit reports whether crediting amount on top of total stays within
// capacity.
func (l Limits) AllowDeposit(total, amount *big.Int) bool {
	return new(big.Int).Add(total, amount).Cmp(l.Capacity) <= 0
}

// AllowWithdrawal reports whether amount is within the per-transaction ceiling.
func (l Limits) AllowWithdrawal(amount *big.Int) bool {
	return amount.Cmp(l.WithdrawalCeiling) <= 0
}
