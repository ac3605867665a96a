// Package vault implements the custodial reference-asset ledger: balance
// bookkeeping, swap-mediated deposits, withdrawal enforcement, and the
// re-entrancy discipline that keeps both safe.
package vault

import "math/big"

// Address identifies a party or an asset. The empty string is the zero
// address and is never a valid identity.
type Address string

// ZeroAddress is the invalid/unset identity.
const ZeroAddress Address = ""

// Bank moves fungible assets between parties. Implementations must fail the
// transfer, leaving balances untouched, when the source holds too little.
type Bank interface {
	// BalanceOf reports how much of asset the owner holds.
	BalanceOf(owner, asset Address) *big.Int
	// Transfer moves amount of asset between two parties the caller controls.
	Transfer(from, to, asset Address, amount *big.Int) error
	// TransferFrom pulls amount of asset from owner into to's custody.
	TransferFrom(owner, to, asset Address, amount *big.Int) error
	// WrapNative converts amount of the owner's native balance into the
	// wrapped fungible form and returns the wrapper asset identity.
	WrapNative(owner Address, amount *big.Int) (Address, error)
}

// Pair is one constant-product pool inside a Market.
type Pair interface {
	// Tokens returns the pool's two assets in their canonical sorted order.
	Tokens() (Address, Address)
	// Reserves returns the current reserve of token0 and token1.
	Reserves() (*big.Int, *big.Int)
	// Swap sends out0 of token0 and out1 of token1 to the recipient, pricing
	// the trade against whatever was transferred in beforehand.
	Swap(out0, out1 *big.Int, to Address) error
	// Address is the identity the pool holds its reserves under.
	Address() Address
}

// Market resolves direct pairs between two assets.
type Market interface {
	Pair(a, b Address) (Pair, bool)
}

// AccessControl is the capability map gating administrative operations. The
// super-admin is fixed at creation; the admin set is mutable through it.
type AccessControl interface {
	IsAdmin(id Address) bool
	IsSuperAdmin(id Address) bool
	GrantAdmin(id Address) error
	RevokeAdmin(id Address) error
}

// TxRunner executes fn as one atomic unit against external state: when fn
// fails, every external side effect it performed is rolled back.
type TxRunner interface {
	Atomically(fn func() error) error
}

// Store persists ledger mutations. Implementations must apply each call
// atomically so a restart never observes a half-applied transition.
type Store interface {
	// ApplyBalances writes one user's balance together with the aggregates
	// mutated alongside it.
	ApplyBalances(user Address, balance, total *big.Int, depositCount, withdrawCount uint64) error
	SetCapacity(capacity *big.Int) error
	SetWithdrawalCeiling(ceiling *big.Int) error
}

// Notifier receives the notifications emitted on successful operations.
type Notifier interface {
	DepositAccepted(user, assetIn Address, amountIn, amountOut *big.Int)
	WithdrawalAccepted(user Address, amount *big.Int)
	CapacityUpdated(newCapacity *big.Int)
	ThresholdUpdated(newThreshold *big.Int)
	AdminGranted(id Address)
	AdminRevoked(id Address)
}

// State is a restorable snapshot of everything the ledger persists.
type State struct {
	Balances          map[Address]*big.Int
	TotalDeposited    *big.Int
	DepositCount      uint64
	WithdrawCount     uint64
	Capacity          *big.Int
	WithdrawalCeiling *big.Int
}

type nopStore struct{}

func (nopStore) ApplyBalances(Address, *big.Int, *big.Int, uint64, uint64) error { return nil }
func (nopStore) SetCapacity(*big.Int) error                                     { return nil }
func (nopStore) SetWithdrawalCeiling(*big.Int) error                            { return nil }

// NopStore discards every persistence call; useful for tests and ephemeral runs.
func NopStore() Store { return nopStore{} }

type nopNotifier struct{}

func (nopNotifier) DepositAccepted(Address, Address, *big.Int, *big.Int) {}
func (nopNotifier) WithdrawalAccepted(Address, *big.Int)                 {}
func (nopNotifier) CapacityUpdated(*big.Int)                             {}
func (nopNotifier) ThresholdUpdated(*big.Int)                            {}
func (nopNotifier) AdminGranted(Address)                                 {}
func (nopNotifier) AdminRevoked(Address)                                 {}

// NopNotifier swallows every notification.
func NopNotifier() Notifier { return nopNotifier{} }
