package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

var (
	// ErrNoLiquidity is returned for swaps against an empty pool or for a
	// zero output request.
	ErrNoLiquidity = errors.New("no liquidity")
	// ErrConstantProduct is returned when a swap would leave the pool with
	// less than its fee-adjusted invariant product.
	ErrConstantProduct = errors.New("constant product violated")
)

var (
	thousand = big.NewInt(1000)
	three    = big.NewInt(3)
)

// Pool is one constant-product pair. Reserves live in the bank under the
// pool's own address; the cached reserve values are synced after every swap.
type Pool struct {
	mu       sync.Mutex
	addr     vault.Address
	token0   vault.Address
	token1   vault.Address
	reserve0 *big.Int
	reserve1 *big.Int
	bank     *Bank
}

// Tokens returns the pair in canonical sorted order.
func (p *Pool) Tokens() (vault.Address, vault.Address) { return p.token0, p.token1 }

// Address is the identity the pool holds reserves under.
func (p *Pool) Address() vault.Address { return p.addr }

// Reserves returns the cached reserves of token0 and token1.
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
}

// Swap sends out0/out1 to the recipient, pricing against whatever was
// transferred in since the last sync. The fee-adjusted product must not
// shrink, which is what makes the 0.3% fee binding.
func (p *Pool) Swap(out0, out1 *big.Int, to vault.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if out0 == nil {
		out0 = new(big.Int)
	}
	if out1 == nil {
		out1 = new(big.Int)
	}
	if out0.Sign() == 0 && out1.Sign() == 0 {
		return fmt.Errorf("swap on %s: %w", p.addr, ErrNoLiquidity)
	}
	if out0.Cmp(p.reserve0) >= 0 || out1.Cmp(p.reserve1) >= 0 {
		return fmt.Errorf("swap on %s: output exceeds reserves: %w", p.addr, ErrNoLiquidity)
	}

	if out0.Sign() > 0 {
		if err := p.bank.Transfer(p.addr, to, p.token0, out0); err != nil {
			return err
		}
	}
	if out1.Sign() > 0 {
		if err := p.bank.Transfer(p.addr, to, p.token1, out1); err != nil {
			return err
		}
	}

	balance0 := p.bank.BalanceOf(p.addr, p.token0)
	balance1 := p.bank.BalanceOf(p.addr, p.token1)
	in0 := amountIn(balance0, p.reserve0, out0)
	in1 := amountIn(balance1, p.reserve1, out1)
	if in0.Sign() == 0 && in1.Sign() == 0 {
		return fmt.Errorf("swap on %s: nothing transferred in: %w", p.addr, ErrNoLiquidity)
	}

	// balance*1000 - in*3, per leg; product must not drop below the pre-swap
	// product scaled by 1000^2.
	adjusted0 := new(big.Int).Mul(balance0, thousand)
	adjusted0.Sub(adjusted0, new(big.Int).Mul(in0, three))
	adjusted1 := new(big.Int).Mul(balance1, thousand)
	adjusted1.Sub(adjusted1, new(big.Int).Mul(in1, three))

	before := new(big.Int).Mul(p.reserve0, p.reserve1)
	before.Mul(before, new(big.Int).Mul(thousand, thousand))
	if new(big.Int).Mul(adjusted0, adjusted1).Cmp(before) < 0 {
		return fmt.Errorf("swap on %s: %w", p.addr, ErrConstantProduct)
	}

	p.reserve0 = balance0
	p.reserve1 = balance1
	return nil
}

func amountIn(balance, reserve, out *big.Int) *big.Int {
	// balance - (reserve - out), floored at zero.
	in := new(big.Int).Sub(balance, new(big.Int).Sub(reserve, out))
	if in.Sign() < 0 {
		return new(big.Int)
	}
	return in
}

// sync recomputes the cached reserves from the bank; used after liquidity
// changes outside a swap.
func (p *Pool) sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserve0 = p.bank.BalanceOf(p.addr, p.token0)
	p.reserve1 = p.bank.BalanceOf(p.addr, p.token1)
}

// AMM resolves and manages constant-product pools.
type AMM struct {
	mu    sync.Mutex
	bank  *Bank
	pools map[[2]vault.Address]*Pool
}

// NewAMM creates an empty venue backed by the bank.
func NewAMM(bank *Bank) *AMM {
	return &AMM{bank: bank, pools: make(map[[2]vault.Address]*Pool)}
}

// CreatePool registers a pool for the pair, seeds it with the given reserves,
// and returns it. Reserves are minted to the pool's address.
func (a *AMM) CreatePool(addr, tokenA, tokenB vault.Address, reserveA, reserveB *big.Int) (*Pool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("pool %s: identical tokens", addr)
	}
	token0, token1 := sortTokens(tokenA, tokenB)
	reserve0, reserve1 := reserveA, reserveB
	if token0 != tokenA {
		reserve0, reserve1 = reserveB, reserveA
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	key := [2]vault.Address{token0, token1}
	if _, exists := a.pools[key]; exists {
		return nil, fmt.Errorf("pool for %s/%s already exists", token0, token1)
	}
	a.bank.Mint(token0, addr, reserve0)
	a.bank.Mint(token1, addr, reserve1)
	pool := &Pool{addr: addr, token0: token0, token1: token1, bank: a.bank}
	pool.sync()
	a.pools[key] = pool
	return pool, nil
}

// Pair resolves the direct pool between two assets, if one exists.
func (a *AMM) Pair(x, y vault.Address) (vault.Pair, bool) {
	token0, token1 := sortTokens(x, y)
	a.mu.Lock()
	defer a.mu.Unlock()
	pool, ok := a.pools[[2]vault.Address{token0, token1}]
	if !ok {
		return nil, false
	}
	return pool, true
}

func sortTokens(a, b vault.Address) (vault.Address, vault.Address) {
	if b < a {
		return b, a
	}
	return a, b
}

type poolSnapshot struct {
	reserve0 *big.Int
	reserve1 *big.Int
}

func (a *AMM) snapshot() map[[2]vault.Address]poolSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := make(map[[2]vault.Address]poolSnapshot, len(a.pools))
	for key, pool := range a.pools {
		r0, r1 := pool.Reserves()
		snap[key] = poolSnapshot{reserve0: r0, reserve1: r1}
	}
	return snap
}

func (a *AMM) restore(snap map[[2]vault.Address]poolSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, pool := range a.pools {
		saved, ok := snap[key]
		if !ok {
			continue
		}
		pool.mu.Lock()
		pool.reserve0 = new(big.Int).Set(saved.reserve0)
		pool.reserve1 = new(big.Int).Set(saved.reserve1)
		pool.mu.Unlock()
	}
}
