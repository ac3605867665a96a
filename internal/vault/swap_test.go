package vault

import (
	"errors"
	"math/big"
	"testing"
)

const (
	tokenX = Address("TOKX") // sorts before USDC
	tokenZ = Address("ZTOK") // sorts after USDC
	poolX  = Address("pool-tokx-usdc")
	poolZ  = Address("pool-ztok-usdc")
)

func TestQuoteDeterministic(t *testing.T) {
	out, err := Quote(big.NewInt(1000), big.NewInt(10_000), big.NewInt(20_000))
	if err != nil {
		t.Fatalf("quote returned error: %v", err)
	}
	// floor(1000*997*20000 / (10000*1000 + 1000*997)) = 1813
	if out.Int64() != 1813 {
		t.Fatalf("expected 1813, got %s", out)
	}
}

func TestQuoteFailsOnZero(t *testing.T) {
	cases := []struct {
		name                            string
		amountIn, reserveIn, reserveOut int64
	}{
		{"zero amount", 0, 10_000, 20_000},
		{"zero reserve in", 1000, 0, 20_000},
		{"zero reserve out", 1000, 10_000, 0},
	}
	for _, tc := range cases {
		_, err := Quote(big.NewInt(tc.amountIn), big.NewInt(tc.reserveIn), big.NewInt(tc.reserveOut))
		if !errors.Is(err, ErrLiquidityInsufficient) {
			t.Fatalf("%s: expected liquidity error, got %v", tc.name, err)
		}
	}
	if _, err := Quote(nil, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrLiquidityInsufficient) {
		t.Fatalf("nil amount: expected liquidity error, got %v", err)
	}
}

func TestSwapDepositScenario(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)
	env.bank.set(tokenX, alice, 5000)

	out, err := env.vault.DepositToken(alice, tokenX, big.NewInt(1000), big.NewInt(1800))
	if err != nil {
		t.Fatalf("swap deposit returned error: %v", err)
	}
	if out.Int64() != 1813 {
		t.Fatalf("expected 1813 credited, got %s", out)
	}
	if got := env.vault.BalanceOf(alice); got.Int64() != 1813 {
		t.Fatalf("expected balance 1813, got %s", got)
	}
	if got := env.vault.TotalDeposited(); got.Int64() != 1813 {
		t.Fatalf("expected total 1813, got %s", got)
	}
	if env.vault.DepositCount() != 1 {
		t.Fatalf("expected deposit count 1, got %d", env.vault.DepositCount())
	}
	if got := env.bank.BalanceOf(alice, tokenX); got.Int64() != 4000 {
		t.Fatalf("expected alice to keep 4000 TOKX, got %s", got)
	}

	last := env.notifier.events[len(env.notifier.events)-1]
	if last.kind != "deposit" || last.asset != tokenX {
		t.Fatalf("unexpected notification: %+v", last)
	}
	if last.amountIn.Int64() != 1000 || last.amountOut.Int64() != 1813 {
		t.Fatalf("unexpected notification amounts: %s/%s", last.amountIn, last.amountOut)
	}
}

// Same trade with the asset sorting after the reference asset, exercising the
// other pair-ordering branch.
func TestSwapDepositReversedTokenOrder(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, poolZ, tokenZ, refAsset, 10_000, 20_000)
	env.bank.set(tokenZ, alice, 5000)

	out, err := env.vault.DepositToken(alice, tokenZ, big.NewInt(1000), big.NewInt(1800))
	if err != nil {
		t.Fatalf("swap deposit returned error: %v", err)
	}
	if out.Int64() != 1813 {
		t.Fatalf("expected 1813 credited, got %s", out)
	}
}

func TestSwapDepositSlippage(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)
	env.bank.set(tokenX, alice, 5000)

	_, err := env.vault.DepositToken(alice, tokenX, big.NewInt(1000), big.NewInt(1900))
	if !errors.Is(err, ErrInsufficientOutput) {
		t.Fatalf("expected insufficient output, got %v", err)
	}
	if got := env.vault.TotalDeposited(); got.Sign() != 0 {
		t.Fatalf("failed swap mutated ledger: %s", got)
	}
	// The pulled tokens must be back with the user, not stranded in custody.
	if got := env.bank.BalanceOf(alice, tokenX); got.Int64() != 5000 {
		t.Fatalf("failed swap did not refund alice: %s TOKX", got)
	}
	if got := env.bank.BalanceOf(custody, tokenX); got.Sign() != 0 {
		t.Fatalf("failed swap left %s TOKX in custody", got)
	}
}

// The venue delivers less than quoted; the post-check on the measured amount
// must catch what the pre-check could not.
func TestSwapDepositPostCheckCatchesShortDelivery(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	pair := env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)
	pair.skim = big.NewInt(50)
	env.bank.set(tokenX, alice, 5000)

	// Quoted 1813 passes minOut 1800; delivered 1763 must not.
	_, err := env.vault.DepositToken(alice, tokenX, big.NewInt(1000), big.NewInt(1800))
	if !errors.Is(err, ErrInsufficientOutput) {
		t.Fatalf("expected insufficient output from post-check, got %v", err)
	}
	if got := env.vault.BalanceOf(alice); got.Sign() != 0 {
		t.Fatalf("failed swap credited balance: %s", got)
	}
	if got := env.bank.BalanceOf(alice, tokenX); got.Int64() != 5000 {
		t.Fatalf("failed swap did not refund alice: %s TOKX", got)
	}
	if got := env.bank.BalanceOf(custody, refAsset); got.Sign() != 0 {
		t.Fatalf("failed swap left %s USDC in custody", got)
	}
	// The pool's reserves must read as if the trade never happened.
	if r0, r1 := pair.Reserves(); r0.Int64() != 10_000 || r1.Int64() != 20_000 {
		t.Fatalf("failed swap moved reserves: %s/%s", r0, r1)
	}
}

func TestSwapDepositCapacityPreCheck(t *testing.T) {
	env := newTestVault(t, 1800, 500)
	env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)
	env.bank.set(tokenX, alice, 5000)

	_, err := env.vault.DepositToken(alice, tokenX, big.NewInt(1000), big.NewInt(0))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
	if got := env.vault.TotalDeposited(); got.Sign() != 0 {
		t.Fatalf("failed swap mutated ledger: %s", got)
	}
	if got := env.bank.BalanceOf(alice, tokenX); got.Int64() != 5000 {
		t.Fatalf("failed swap did not refund alice: %s TOKX", got)
	}
}

func TestSwapDepositValidation(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)
	env.bank.set(tokenX, alice, 5000)

	if _, err := env.vault.DepositToken(alice, ZeroAddress, big.NewInt(1000), nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if _, err := env.vault.DepositToken(alice, refAsset, big.NewInt(1000), nil); !errors.Is(err, ErrReferenceAssetNotAllowed) {
		t.Fatalf("expected reference asset rejection, got %v", err)
	}
	if _, err := env.vault.DepositToken(alice, "UNLISTED", big.NewInt(1000), nil); !errors.Is(err, ErrPairNotFound) {
		t.Fatalf("expected pair not found, got %v", err)
	}
	if _, err := env.vault.DepositToken(alice, tokenX, big.NewInt(0), nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestDepositNative(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, "pool-wnat-usdc", env.bank.wrapped, refAsset, 10_000, 20_000)
	env.bank.set("native", alice, 5000)

	out, err := env.vault.DepositNative(alice, big.NewInt(1000), big.NewInt(1800))
	if err != nil {
		t.Fatalf("native deposit returned error: %v", err)
	}
	if out.Int64() != 1813 {
		t.Fatalf("expected 1813 credited, got %s", out)
	}
	if got := env.bank.BalanceOf(alice, "native"); got.Int64() != 4000 {
		t.Fatalf("expected 4000 native left, got %s", got)
	}
}

func TestDepositNativeInsufficientFunds(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, "pool-wnat-usdc", env.bank.wrapped, refAsset, 10_000, 20_000)

	if _, err := env.vault.DepositNative(alice, big.NewInt(1000), nil); err == nil {
		t.Fatalf("expected native deposit to fail without funds")
	}
	if got := env.vault.TotalDeposited(); got.Sign() != 0 {
		t.Fatalf("failed native deposit mutated ledger: %s", got)
	}
}

func TestPairAddress(t *testing.T) {
	env := newTestVault(t, 1_000_000, 500_000)
	env.market.addPair(env.bank, poolX, tokenX, refAsset, 10_000, 20_000)

	addr, err := env.vault.PairAddress(tokenX, refAsset)
	if err != nil {
		t.Fatalf("pair address returned error: %v", err)
	}
	if addr != poolX {
		t.Fatalf("unexpected pair address: %s", addr)
	}
	if _, err := env.vault.PairAddress("UNLISTED", refAsset); !errors.Is(err, ErrPairNotFound) {
		t.Fatalf("expected pair not found, got %v", err)
	}
}
