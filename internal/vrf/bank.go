package vrf

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
)

// ReservationStatus tracks a fee hold.
type ReservationStatus string

const (
	ReservationPending  ReservationStatus = "pending"
	ReservationConsumed ReservationStatus = "consumed"
	ReservationReleased ReservationStatus = "released"
)

// Reservation holds a request fee until the request is fulfilled or dropped.
type Reservation struct {
	ID        string
	Consumer  string
	RequestID string
	Amount    int64
	Status    ReservationStatus
	CreatedAt time.Time
}

type account struct {
	balance  int64
	reserved int64
}

func (a *account) available() int64 {
	return a.balance - a.reserved
}

// bank keeps consumer funding. Callers hold Service.mu.
type bank struct {
	accounts     map[string]*account
	reservations map[string]*Reservation
}

func newBank() *bank {
	return &bank{
		accounts:     make(map[string]*account),
		reservations: make(map[string]*Reservation),
	}
}

func (b *bank) fund(consumer string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.Validation("funding amount must be > 0")
	}
	acct := b.account(consumer)
	acct.balance += amount
	return acct.available(), nil
}

func (b *bank) account(consumer string) *account {
	acct, ok := b.accounts[consumer]
	if !ok {
		acct = &account{}
		b.accounts[consumer] = acct
	}
	return acct
}

func (b *bank) available(consumer string) int64 {
	if acct, ok := b.accounts[consumer]; ok {
		return acct.available()
	}
	return 0
}

func (b *bank) reserve(consumer, requestID string, amount int64) (*Reservation, error) {
	acct := b.account(consumer)
	if amount > acct.available() {
		return nil, ErrInsufficientFunds.
			WithDetails("available", acct.available()).
			WithDetails("required", amount)
	}
	r := &Reservation{
		ID:        uuid.New().String(),
		Consumer:  consumer,
		RequestID: requestID,
		Amount:    amount,
		Status:    ReservationPending,
		CreatedAt: time.Now().UTC(),
	}
	acct.reserved += amount
	b.reservations[r.ID] = r
	return r, nil
}

// consume deducts a pending reservation from the balance.
func (b *bank) consume(id string) error {
	r, ok := b.reservations[id]
	if !ok {
		return apperrors.NotFound("reservation", id)
	}
	if r.Status != ReservationPending {
		return fmt.Errorf("reservation already %s", r.Status)
	}
	acct := b.account(r.Consumer)
	acct.balance -= r.Amount
	acct.reserved -= r.Amount
	if acct.reserved < 0 {
		acct.reserved = 0
	}
	r.Status = ReservationConsumed
	delete(b.reservations, id)
	return nil
}

// release returns a pending reservation to the available balance. Unknown
// ids are treated as already released.
func (b *bank) release(id string) error {
	r, ok := b.reservations[id]
	if !ok {
		return nil
	}
	delete(b.reservations, id)
	if r.Status != ReservationPending {
		return fmt.Errorf("reservation already %s", r.Status)
	}
	acct := b.account(r.Consumer)
	acct.reserved -= r.Amount
	if acct.reserved < 0 {
		acct.reserved = 0
	}
	r.Status = ReservationReleased
	return nil
}
