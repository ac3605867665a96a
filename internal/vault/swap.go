package vault

import (
	"fmt"
	"math/big"

	"github.com/EzequielArce/KipuBankV3/internal/metrics"
)

// Venue fee: 0.3%, applied as an exact integer multiplier.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

// Quote prices a constant-product trade with the venue fee, floor division,
// exact integer arithmetic throughout:
//
//	out = amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997)
func Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		reserveIn == nil || reserveIn.Sign() <= 0 ||
		reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrLiquidityInsufficient
	}
	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Quo(numerator, denominator), nil
}

// DepositToken converts amountIn of a non-reference asset into the reference
// asset through the market and credits the proceeds to user. minOut is the
// caller's slippage bound on the reference-asset amount actually received.
// Returns the amount credited.
func (v *Vault) DepositToken(user, asset Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := v.guard.enter(); err != nil {
		return nil, err
	}
	defer v.guard.exit()

	var out *big.Int
	err := v.runner.Atomically(func() error {
		var err error
		out, err = v.depositViaSwap(user, asset, amountIn, minOut)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DepositNative wraps amountIn of the user's native balance into its fungible
// wrapper, then follows the token deposit path with the wrapper as the asset.
func (v *Vault) DepositNative(user Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if err := v.guard.enter(); err != nil {
		return nil, err
	}
	defer v.guard.exit()

	var out *big.Int
	err := v.runner.Atomically(func() error {
		if amountIn == nil || amountIn.Sign() <= 0 {
			return fmt.Errorf("native deposit for %s: %w", user, ErrInvalidAmount)
		}
		wrapped, err := v.bank.WrapNative(user, amountIn)
		if err != nil {
			return fmt.Errorf("wrap native for %s: %w", user, err)
		}
		out, err = v.depositViaSwap(user, wrapped, amountIn, minOut)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Vault) depositViaSwap(user, asset Address, amountIn, minOut *big.Int) (*big.Int, error) {
	if user == ZeroAddress || asset == ZeroAddress {
		return nil, fmt.Errorf("swap deposit: %w", ErrInvalidAddress)
	}
	if asset == v.refAsset {
		return nil, fmt.Errorf("swap deposit of %s: %w", asset, ErrReferenceAssetNotAllowed)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("swap deposit for %s: %w", user, ErrInvalidAmount)
	}
	if minOut == nil {
		minOut = new(big.Int)
	}

	pair, ok := v.market.Pair(asset, v.refAsset)
	if !ok {
		return nil, fmt.Errorf("pair %s/%s: %w", asset, v.refAsset, ErrPairNotFound)
	}

	if err := v.bank.TransferFrom(user, v.custody, asset, amountIn); err != nil {
		return nil, fmt.Errorf("pull %s of %s from %s: %w", amountIn, asset, user, err)
	}

	token0, _ := pair.Tokens()
	token0IsAsset := token0 == asset
	reserve0, reserve1 := pair.Reserves()
	reserveIn, reserveOut := reserve0, reserve1
	if !token0IsAsset {
		reserveIn, reserveOut = reserve1, reserve0
	}

	expectedOut, err := Quote(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	// Pre-check on the estimate: rejects obviously-bad trades before paying
	// for the swap. The binding check happens against the measured amount.
	if expectedOut.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("expected %s below min %s: %w", expectedOut, minOut, ErrInsufficientOutput)
	}
	if !v.limits.AllowDeposit(v.TotalDeposited(), expectedOut) {
		return nil, depositRejected(fmt.Errorf("expected %s: %w", expectedOut, ErrCapacityExceeded))
	}

	before := v.bank.BalanceOf(v.custody, v.refAsset)

	if err := v.bank.Transfer(v.custody, pair.Address(), asset, amountIn); err != nil {
		return nil, fmt.Errorf("fund pair: %w", err)
	}
	out0, out1 := new(big.Int), new(big.Int)
	if token0IsAsset {
		out1 = expectedOut
	} else {
		out0 = expectedOut
	}
	if err := pair.Swap(out0, out1, v.custody); err != nil {
		return nil, fmt.Errorf("swap %s for %s: %w", asset, v.refAsset, err)
	}

	// Reserves can shift between quoting and execution; only the measured
	// custody delta is authoritative.
	actualOut := new(big.Int).Sub(v.bank.BalanceOf(v.custody, v.refAsset), before)
	if actualOut.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("received %s below min %s: %w", actualOut, minOut, ErrInsufficientOutput)
	}
	if !v.limits.AllowDeposit(v.TotalDeposited(), actualOut) {
		return nil, depositRejected(fmt.Errorf("received %s: %w", actualOut, ErrCapacityExceeded))
	}

	if err := v.creditFromSwap(user, actualOut); err != nil {
		return nil, err
	}

	metrics.SwapsTotal.WithLabelValues(string(asset)).Inc()
	v.notifier.DepositAccepted(user, asset, amountIn, actualOut)
	v.log.Info().
		Str("user", string(user)).
		Str("asset", string(asset)).
		Str("amount_in", amountIn.String()).
		Str("amount_out", actualOut.String()).
		Msg("swap deposit accepted")
	return actualOut, nil
}
