// Package events carries the notifications the vault emits on successful
// operations and the sinks that record or broadcast them.
package events

import (
	"math/big"
	"sync"
	"time"

	"github.com/EzequielArce/KipuBankV3/internal/vault"
)

// Type names one notification kind.
type Type string

const (
	TypeDepositAccepted    Type = "deposit_accepted"
	TypeWithdrawalAccepted Type = "withdrawal_accepted"
	TypeCapacityUpdated    Type = "capacity_updated"
	TypeThresholdUpdated   Type = "threshold_updated"
	TypeAdminGranted       Type = "admin_granted"
	TypeAdminRevoked       Type = "admin_revoked"
)

// Event is one emitted notification. Amounts are decimal strings so events
// serialize losslessly. Fields not meaningful for a given type are empty.
type Event struct {
	Type      Type          `json:"type"`
	User      vault.Address `json:"user,omitempty"`
	Asset     vault.Address `json:"asset,omitempty"`
	AmountIn  string        `json:"amount_in,omitempty"`
	AmountOut string        `json:"amount_out,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Value     string        `json:"value,omitempty"`
	Identity  vault.Address `json:"identity,omitempty"`
	At        time.Time     `json:"at"`
}

// Sink consumes emitted events.
type Sink interface {
	Record(Event)
}

// Notifier fans vault notifications out to its sinks.
type Notifier struct {
	refAsset vault.Address
	sinks    []Sink
}

// NewNotifier builds a notifier for the given reference asset.
func NewNotifier(refAsset vault.Address, sinks ...Sink) *Notifier {
	return &Notifier{refAsset: refAsset, sinks: sinks}
}

func (n *Notifier) emit(ev Event) {
	ev.At = time.Now().UTC()
	for _, sink := range n.sinks {
		sink.Record(ev)
	}
}

func (n *Notifier) DepositAccepted(user, assetIn vault.Address, amountIn, amountOut *big.Int) {
	n.emit(Event{
		Type:      TypeDepositAccepted,
		User:      user,
		Asset:     assetIn,
		AmountIn:  amountIn.String(),
		AmountOut: amountOut.String(),
	})
}

func (n *Notifier) WithdrawalAccepted(user vault.Address, amount *big.Int) {
	n.emit(Event{
		Type:   TypeWithdrawalAccepted,
		User:   user,
		Asset:  n.refAsset,
		Amount: amount.String(),
	})
}

func (n *Notifier) CapacityUpdated(newCapacity *big.Int) {
	n.emit(Event{Type: TypeCapacityUpdated, Value: newCapacity.String()})
}

func (n *Notifier) ThresholdUpdated(newThreshold *big.Int) {
	n.emit(Event{Type: TypeThresholdUpdated, Value: newThreshold.String()})
}

func (n *Notifier) AdminGranted(id vault.Address) {
	n.emit(Event{Type: TypeAdminGranted, Identity: id})
}

func (n *Notifier) AdminRevoked(id vault.Address) {
	n.emit(Event{Type: TypeAdminRevoked, Identity: id})
}

// Log stores emitted events in memory for quick inspection.
type Log struct {
	mu     sync.Mutex
	events []Event
}

// NewLog creates an empty log optionally pre-sizing storage.
func NewLog(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{events: make([]Event, 0, capacity)}
}

// Record appends an event to the log.
func (l *Log) Record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded events.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Reset clears all stored events.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}
