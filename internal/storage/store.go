// Package storage persists the ledger in SQLite: balances, aggregates,
// config scalars, and the admin role set all survive process restarts.
package storage

import (
	"database/sql"
	"fmt"
	"math/big"

	_ "github.com/glebarez/go-sqlite"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

const (
	metaTotalDeposited    = "total_deposited"
	metaDepositCount      = "deposit_count"
	metaWithdrawCount     = "withdraw_count"
	metaCapacity          = "capacity"
	metaWithdrawalCeiling = "withdrawal_ceiling"
)

// Store is the SQLite-backed ledger store. Amounts are stored as decimal
// strings so arbitrary-precision values round-trip exactly.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path with WAL enabled.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS balances (
			user TEXT PRIMARY KEY,
			amount TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS admins (
			identity TEXT PRIMARY KEY
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// ApplyBalances writes one user's balance and the aggregates mutated
// alongside it in a single transaction.
func (s *Store) ApplyBalances(user vault.Address, balance, total *big.Int, depositCount, withdrawCount uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO balances (user, amount) VALUES (?, ?) ON CONFLICT(user) DO UPDATE SET amount=excluded.amount",
		string(user), balance.String(),
	); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	meta := map[string]string{
		metaTotalDeposited: total.String(),
		metaDepositCount:   fmt.Sprintf("%d", depositCount),
		metaWithdrawCount:  fmt.Sprintf("%d", withdrawCount),
	}
	for key, value := range meta {
		if err := upsertMeta(tx, key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetCapacity persists the capacity scalar.
func (s *Store) SetCapacity(capacity *big.Int) error {
	return s.setMeta(metaCapacity, capacity.String())
}

// SetWithdrawalCeiling persists the per-withdrawal ceiling.
func (s *Store) SetWithdrawalCeiling(ceiling *big.Int) error {
	return s.setMeta(metaWithdrawalCeiling, ceiling.String())
}

// PutAdmin persists admin role membership.
func (s *Store) PutAdmin(id vault.Address) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO admins (identity) VALUES (?)", string(id))
	if err != nil {
		return fmt.Errorf("write admin: %w", err)
	}
	return nil
}

// DeleteAdmin removes admin role membership.
func (s *Store) DeleteAdmin(id vault.Address) error {
	_, err := s.db.Exec("DELETE FROM admins WHERE identity = ?", string(id))
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	return nil
}

// Load reads the persisted ledger state and admin set. A fresh database
// yields (nil, nil, nil) so the caller falls back to its configured values.
func (s *Store) Load() (*vault.State, []vault.Address, error) {
	meta, err := s.loadMeta()
	if err != nil {
		return nil, nil, err
	}
	admins, err := s.loadAdmins()
	if err != nil {
		return nil, nil, err
	}
	if len(meta) == 0 {
		return nil, admins, nil
	}

	state := &vault.State{
		Balances:       make(map[vault.Address]*big.Int),
		TotalDeposited: new(big.Int),
	}
	rows, err := s.db.Query("SELECT user, amount FROM balances")
	if err != nil {
		return nil, nil, fmt.Errorf("read balances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var user, amount string
		if err := rows.Scan(&user, &amount); err != nil {
			return nil, nil, fmt.Errorf("scan balance: %w", err)
		}
		value, err := parseAmount(amount)
		if err != nil {
			return nil, nil, fmt.Errorf("balance for %s: %w", user, err)
		}
		state.Balances[vault.Address(user)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read balances: %w", err)
	}

	if raw, ok := meta[metaTotalDeposited]; ok {
		if state.TotalDeposited, err = parseAmount(raw); err != nil {
			return nil, nil, fmt.Errorf("total deposited: %w", err)
		}
	}
	if raw, ok := meta[metaCapacity]; ok {
		if state.Capacity, err = parseAmount(raw); err != nil {
			return nil, nil, fmt.Errorf("capacity: %w", err)
		}
	}
	if raw, ok := meta[metaWithdrawalCeiling]; ok {
		if state.WithdrawalCeiling, err = parseAmount(raw); err != nil {
			return nil, nil, fmt.Errorf("withdrawal ceiling: %w", err)
		}
	}
	if raw, ok := meta[metaDepositCount]; ok {
		if _, err := fmt.Sscanf(raw, "%d", &state.DepositCount); err != nil {
			return nil, nil, fmt.Errorf("deposit count %q: %w", raw, err)
		}
	}
	if raw, ok := meta[metaWithdrawCount]; ok {
		if _, err := fmt.Sscanf(raw, "%d", &state.WithdrawCount); err != nil {
			return nil, nil, fmt.Errorf("withdraw count %q: %w", raw, err)
		}
	}
	return state, admins, nil
}

func (s *Store) loadMeta() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func (s *Store) loadAdmins() ([]vault.Address, error) {
	rows, err := s.db.Query("SELECT identity FROM admins")
	if err != nil {
		return nil, fmt.Errorf("read admins: %w", err)
	}
	defer rows.Close()
	var admins []vault.Address
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, vault.Address(id))
	}
	return admins, rows.Err()
}

func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

func upsertMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", raw)
	}
	return value, nil
}
