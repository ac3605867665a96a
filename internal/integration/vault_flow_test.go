package integration

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/EzequielArce/KipuBankV3/internal/access"
	"github.com/EzequielArce/KipuBankV3/internal/chain"
	"github.com/EzequielArce/KipuBankV3/internal/events"
	"github.com/EzequielArce/KipuBankV3/internal/storage"
	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

func buildVault(t *testing.T, store *storage.Store, state *vault.State, storedAdmins []vault.Address, log *events.Log) (*vault.Vault, *chain.Chain) {
	t.Helper()

	sim := chain.New("WETH")
	sim.Bank.Mint("USDC", "alice", big.NewInt(100_000))
	sim.Bank.Mint("TOKX", "bob", big.NewInt(50_000))
	sim.Bank.MintNative("bob", big.NewInt(5_000))
	if _, err := sim.AMM.CreatePool("tokx-usdc", "TOKX", "USDC", big.NewInt(10_000), big.NewInt(20_000)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, err := sim.AMM.CreatePool("weth-usdc", "WETH", "USDC", big.NewInt(10_000), big.NewInt(20_000)); err != nil {
		t.Fatalf("create pool: %v", err)
	}

	roles, err := access.New("root", storedAdmins, store)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	v, err := vault.New(vault.Config{
		ReferenceAsset:    "USDC",
		Custody:           "vault",
		Capacity:          big.NewInt(1_000_000),
		WithdrawalCeiling: big.NewInt(10_000),
		Bank:              sim.Bank,
		Market:            sim.AMM,
		Access:            roles,
		Runner:            sim,
		Store:             store,
		Notifier:          events.NewNotifier("USDC", log),
		Logger:            zerolog.Nop(),
		State:             state,
	})
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return v, sim
}

func TestVaultFlowSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	store, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	// First run: seed the persisted limits the way the daemon does.
	if err := store.SetCapacity(big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed capacity: %v", err)
	}
	if err := store.SetWithdrawalCeiling(big.NewInt(10_000)); err != nil {
		t.Fatalf("seed ceiling: %v", err)
	}

	log := events.NewLog(64)
	v, sim := buildVault(t, store, nil, nil, log)

	if err := v.Deposit("alice", big.NewInt(40_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	out, err := v.DepositToken("bob", "TOKX", big.NewInt(1_000), big.NewInt(1_800))
	if err != nil {
		t.Fatalf("token deposit: %v", err)
	}
	if out.Cmp(big.NewInt(1_813)) != 0 {
		t.Fatalf("unexpected swap proceeds %s", out)
	}
	nativeOut, err := v.DepositNative("bob", big.NewInt(500), big.NewInt(1))
	if err != nil {
		t.Fatalf("native deposit: %v", err)
	}

	// A rejected swap must unwind completely: the pulled tokens go back to
	// the user and the ledger stays where it was.
	tokxBefore := sim.Bank.BalanceOf("bob", "TOKX")
	totalBefore := v.TotalDeposited()
	if _, err := v.DepositToken("bob", "TOKX", big.NewInt(1_000), big.NewInt(999_999)); !errors.Is(err, vault.ErrInsufficientOutput) {
		t.Fatalf("expected slippage rejection, got %v", err)
	}
	if got := sim.Bank.BalanceOf("bob", "TOKX"); got.Cmp(tokxBefore) != 0 {
		t.Fatalf("failed swap did not refund bob: %s TOKX, want %s", got, tokxBefore)
	}
	if got := v.TotalDeposited(); got.Cmp(totalBefore) != 0 {
		t.Fatalf("failed swap mutated total: %s", got)
	}
	if err := v.Withdraw("alice", big.NewInt(7_500)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := v.GrantAdmin("root", "carol"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := v.SetWithdrawalCeiling("carol", big.NewInt(12_000)); err != nil {
		t.Fatalf("granted admin set ceiling: %v", err)
	}

	wantTotal := new(big.Int).Add(big.NewInt(40_000-7_500+1_813), nativeOut)
	if got := v.TotalDeposited(); got.Cmp(wantTotal) != 0 {
		t.Fatalf("total = %s, want %s", got, wantTotal)
	}
	if got := sim.Bank.BalanceOf("vault", "USDC"); got.Cmp(wantTotal) != 0 {
		t.Fatalf("custody holds %s, ledger says %s", got, wantTotal)
	}

	kinds := map[events.Type]int{}
	for _, ev := range log.Snapshot() {
		kinds[ev.Type]++
	}
	if kinds[events.TypeDepositAccepted] != 3 || kinds[events.TypeWithdrawalAccepted] != 1 ||
		kinds[events.TypeAdminGranted] != 1 || kinds[events.TypeThresholdUpdated] != 1 {
		t.Fatalf("unexpected event mix: %v", kinds)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Restart: reopen the database and rebuild the vault from what it loads.
	store, err = storage.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	state, admins, err := store.Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state == nil {
		t.Fatalf("expected persisted state after restart")
	}
	if len(admins) != 1 || admins[0] != "carol" {
		t.Fatalf("unexpected stored admins %v", admins)
	}

	v2, _ := buildVault(t, store, state, admins, events.NewLog(64))
	if got := v2.TotalDeposited(); got.Cmp(wantTotal) != 0 {
		t.Fatalf("restored total = %s, want %s", got, wantTotal)
	}
	if got := v2.BalanceOf("alice"); got.Cmp(big.NewInt(32_500)) != 0 {
		t.Fatalf("restored alice balance = %s", got)
	}
	if got := v2.WithdrawalCeiling(); got.Cmp(big.NewInt(12_000)) != 0 {
		t.Fatalf("restored ceiling = %s", got)
	}
	if err := v2.SetCapacity("carol", big.NewInt(2_000_000)); err != nil {
		t.Fatalf("restored admin rejected: %v", err)
	}
}
