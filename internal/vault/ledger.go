package vault

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/EzequielArce/KipuBankV3/internal/metrics"
)

// Config wires a Vault together. Capacity and WithdrawalCeiling seed the
// limits for a fresh ledger; a restored State overrides them.
type Config struct {
	ReferenceAsset    Address
	Custody           Address
	Capacity          *big.Int
	WithdrawalCeiling *big.Int

	Bank     Bank
	Market   Market
	Access   AccessControl
	Runner   TxRunner
	Store    Store
	Notifier Notifier
	Logger   zerolog.Logger

	// State, when non-nil, restores a previously persisted ledger.
	State *State
}

// Vault is the custodial ledger. All value is denominated in the reference
// asset; non-reference deposits are converted through the market first.
type Vault struct {
	guard guard
	mu    sync.RWMutex

	refAsset Address
	custody  Address

	limits        Limits
	balances      map[Address]*big.Int
	total         *big.Int
	depositCount  uint64
	withdrawCount uint64

	bank     Bank
	market   Market
	access   AccessControl
	runner   TxRunner
	store    Store
	notifier Notifier
	log      zerolog.Logger
}

// New validates the wiring and builds a Vault, restoring persisted state when
// one is supplied.
func New(cfg Config) (*Vault, error) {
	switch {
	case cfg.ReferenceAsset == ZeroAddress:
		return nil, fmt.Errorf("%w: reference asset unset", ErrInitializationFailed)
	case cfg.Custody == ZeroAddress:
		return nil, fmt.Errorf("%w: custody identity unset", ErrInitializationFailed)
	case cfg.Bank == nil:
		return nil, fmt.Errorf("%w: bank unset", ErrInitializationFailed)
	case cfg.Market == nil:
		return nil, fmt.Errorf("%w: market unset", ErrInitializationFailed)
	case cfg.Access == nil:
		return nil, fmt.Errorf("%w: access control unset", ErrInitializationFailed)
	case cfg.Runner == nil:
		// Swap deposits lean on the runner to unwind a half-executed trade;
		// without one a failed swap would strand pulled funds in custody.
		return nil, fmt.Errorf("%w: transaction runner unset", ErrInitializationFailed)
	}

	capacity, ceiling := cfg.Capacity, cfg.WithdrawalCeiling
	if cfg.State != nil {
		capacity, ceiling = cfg.State.Capacity, cfg.State.WithdrawalCeiling
	}
	if capacity == nil || capacity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInitializationFailed)
	}
	if ceiling == nil || ceiling.Sign() <= 0 {
		return nil, fmt.Errorf("%w: withdrawal ceiling must be positive", ErrInitializationFailed)
	}
	if capacity.Cmp(ceiling) < 0 {
		return nil, fmt.Errorf("%w: capacity below withdrawal ceiling", ErrInitializationFailed)
	}

	v := &Vault{
		refAsset: cfg.ReferenceAsset,
		custody:  cfg.Custody,
		limits: Limits{
			Capacity:          new(big.Int).Set(capacity),
			WithdrawalCeiling: new(big.Int).Set(ceiling),
		},
		balances: make(map[Address]*big.Int),
		total:    new(big.Int),
		bank:     cfg.Bank,
		market:   cfg.Market,
		access:   cfg.Access,
		runner:   cfg.Runner,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
	}
	if v.store == nil {
		v.store = NopStore()
	}
	if v.notifier == nil {
		v.notifier = NopNotifier()
	}

	if cfg.State != nil {
		for user, bal := range cfg.State.Balances {
			if bal.Sign() < 0 {
				return nil, fmt.Errorf("%w: negative restored balance for %s", ErrInitializationFailed, user)
			}
			v.balances[user] = new(big.Int).Set(bal)
		}
		if cfg.State.TotalDeposited != nil {
			v.total.Set(cfg.State.TotalDeposited)
		}
		sum := new(big.Int)
		for _, bal := range v.balances {
			sum.Add(sum, bal)
		}
		if sum.Cmp(v.total) != 0 {
			return nil, fmt.Errorf("%w: restored total %s does not match balance sum %s",
				ErrInitializationFailed, v.total, sum)
		}
		if v.total.Cmp(v.limits.Capacity) > 0 {
			return nil, fmt.Errorf("%w: restored total %s exceeds capacity %s",
				ErrInitializationFailed, v.total, v.limits.Capacity)
		}
		v.depositCount = cfg.State.DepositCount
		v.withdrawCount = cfg.State.WithdrawCount
	}
	return v, nil
}

// Deposit credits amount of the reference asset to user, pulling the funds
// from the user through the bank.
func (v *Vault) Deposit(user Address, amount *big.Int) error {
	if err := v.guard.enter(); err != nil {
		return err
	}
	defer v.guard.exit()

	if err := v.checkCredit(user, amount); err != nil {
		return err
	}
	if err := v.bank.TransferFrom(user, v.custody, v.refAsset, amount); err != nil {
		return fmt.Errorf("pull deposit from %s: %w", user, err)
	}
	if err := v.commitCredit(user, amount); err != nil {
		// Undo the pull so a persistence failure leaves the world unchanged.
		if rerr := v.bank.Transfer(v.custody, user, v.refAsset, amount); rerr != nil {
			v.log.Error().Err(rerr).Str("user", string(user)).Msg("refund after failed commit")
		}
		return err
	}

	metrics.DepositsTotal.WithLabelValues(string(v.refAsset)).Inc()
	v.notifier.DepositAccepted(user, v.refAsset, amount, amount)
	v.log.Info().Str("user", string(user)).Str("amount", amount.String()).Msg("deposit accepted")
	return nil
}

// Withdraw debits amount of the reference asset from user and pushes it out
// through the bank. The ledger is debited before the outward transfer; a
// re-entrant callback triggered by the transfer already observes the debit.
func (v *Vault) Withdraw(user Address, amount *big.Int) error {
	if err := v.guard.enter(); err != nil {
		return err
	}
	defer v.guard.exit()

	if user == ZeroAddress {
		return fmt.Errorf("withdraw: %w", ErrInvalidAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("withdraw for %s: %w", user, ErrInvalidAmount)
	}

	v.mu.Lock()
	balance, ok := v.balances[user]
	if !ok || balance.Cmp(amount) < 0 {
		v.mu.Unlock()
		return fmt.Errorf("withdraw %s for %s: %w", amount, user, ErrInsufficientBalance)
	}
	if !v.limits.AllowWithdrawal(amount) {
		v.mu.Unlock()
		return fmt.Errorf("withdraw %s for %s over ceiling %s: %w",
			amount, user, v.limits.WithdrawalCeiling, ErrThresholdExceeded)
	}

	newBalance := new(big.Int).Sub(balance, amount)
	newTotal := new(big.Int).Sub(v.total, amount)
	if err := v.store.ApplyBalances(user, newBalance, newTotal, v.depositCount, v.withdrawCount+1); err != nil {
		v.mu.Unlock()
		return fmt.Errorf("persist withdrawal: %w", err)
	}
	v.balances[user] = newBalance
	v.total = newTotal
	v.withdrawCount++
	v.mu.Unlock()

	if err := v.bank.Transfer(v.custody, user, v.refAsset, amount); err != nil {
		v.restoreWithdrawal(user, balance, amount)
		return fmt.Errorf("push withdrawal to %s: %w", user, err)
	}

	metrics.WithdrawalsTotal.Inc()
	metrics.TotalDeposited.Set(float64frombig(newTotal))
	v.notifier.WithdrawalAccepted(user, amount)
	v.log.Info().Str("user", string(user)).Str("amount", amount.String()).Msg("withdrawal accepted")
	return nil
}

// restoreWithdrawal rolls the ledger back after a failed outward transfer.
func (v *Vault) restoreWithdrawal(user Address, balance, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[user] = new(big.Int).Set(balance)
	v.total.Add(v.total, amount)
	v.withdrawCount--
	if err := v.store.ApplyBalances(user, balance, v.total, v.depositCount, v.withdrawCount); err != nil {
		v.log.Error().Err(err).Str("user", string(user)).Msg("persist withdrawal rollback")
	}
}

// checkCredit validates the shared deposit preconditions.
func (v *Vault) checkCredit(user Address, amount *big.Int) error {
	if user == ZeroAddress {
		return fmt.Errorf("deposit: %w", ErrInvalidAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit for %s: %w", user, ErrInvalidAmount)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.limits.AllowDeposit(v.total, amount) {
		return fmt.Errorf("deposit %s for %s over capacity %s: %w",
			amount, user, v.limits.Capacity, ErrCapacityExceeded)
	}
	return nil
}

// commitCredit applies a credit that has passed every check and whose funds
// are already in custody. Persistence happens before the in-memory ledger
// moves so a store failure leaves no partial state.
func (v *Vault) commitCredit(user Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, ok := v.balances[user]
	if !ok {
		balance = new(big.Int)
	}
	newBalance := new(big.Int).Add(balance, amount)
	newTotal := new(big.Int).Add(v.total, amount)
	if err := v.store.ApplyBalances(user, newBalance, newTotal, v.depositCount+1, v.withdrawCount); err != nil {
		return fmt.Errorf("persist deposit: %w", err)
	}
	v.balances[user] = newBalance
	v.total = newTotal
	v.depositCount++
	metrics.TotalDeposited.Set(float64frombig(v.total))
	return nil
}

// creditFromSwap credits swap proceeds already held in custody. The router
// has run its own checks; the capacity check is applied again here so the
// ledger can never be pushed over capacity regardless of caller.
func (v *Vault) creditFromSwap(user Address, amount *big.Int) error {
	if err := v.checkCredit(user, amount); err != nil {
		return err
	}
	return v.commitCredit(user, amount)
}

// BalanceOf returns user's balance; an unknown identity reads as zero.
func (v *Vault) BalanceOf(user Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if bal, ok := v.balances[user]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalDeposited returns the sum of all balances.
func (v *Vault) TotalDeposited() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.total)
}

// DepositCount returns how many deposits have been accepted.
func (v *Vault) DepositCount() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.depositCount
}

// WithdrawCount returns how many withdrawals have been accepted.
func (v *Vault) WithdrawCount() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.withdrawCount
}

// Capacity returns the current total custodial capacity.
func (v *Vault) Capacity() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.limits.Capacity)
}

// WithdrawalCeiling returns the current per-withdrawal ceiling.
func (v *Vault) WithdrawalCeiling() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.limits.WithdrawalCeiling)
}

// ReferenceAsset returns the asset all balances are denominated in.
func (v *Vault) ReferenceAsset() Address { return v.refAsset }

// PairAddress resolves the market pool identity for two assets.
func (v *Vault) PairAddress(a, b Address) (Address, error) {
	pair, ok := v.market.Pair(a, b)
	if !ok {
		return ZeroAddress, fmt.Errorf("pair %s/%s: %w", a, b, ErrPairNotFound)
	}
	return pair.Address(), nil
}

func float64frombig(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
