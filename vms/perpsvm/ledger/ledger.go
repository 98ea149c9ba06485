// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger holds account registrations and quote balances.
//
// It shares the versioned database of the perps state, so balance changes
// made during an operation commit or abort together with the position
// changes that caused them.
package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var (
	ErrAccountExists       = errors.New("account already exists")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnauthorized        = errors.New("caller is not the account owner")

	// FeeCollector receives order fees unless configured otherwise.
	FeeCollector = ids.ID(sha256.Sum256([]byte("perps:fee-collector")))

	prefixBalance = []byte("balance")
	prefixAccount = []byte("account")
)

// Account is a trading account. The owner and its delegates may trade on
// its behalf.
type Account struct {
	ID        ids.ID   `json:"id"`
	Owner     ids.ID   `json:"owner"`
	Delegates []ids.ID `json:"delegates"`
}

type accountRecord struct {
	Owner     ids.ID   `serialize:"true"`
	Delegates []ids.ID `serialize:"true"`
}

// Ledger implements the account registry and value transfer the order
// controller consumes.
type Ledger struct {
	balances database.Database
	accounts database.Database
}

// New returns a ledger stored under db.
func New(db database.Database) *Ledger {
	return &Ledger{
		balances: prefixdb.New(prefixBalance, db),
		accounts: prefixdb.New(prefixAccount, db),
	}
}

// CreateAccount registers account as owned by owner. Repeated delegates and
// the owner itself are dropped from delegates.
func (l *Ledger) CreateAccount(account, owner ids.ID, delegates ...ids.ID) error {
	exists, err := l.Exists(account)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, account)
	}
	return l.putAccount(&Account{
		ID:        account,
		Owner:     owner,
		Delegates: uniqueDelegates(owner, delegates),
	})
}

func uniqueDelegates(owner ids.ID, delegates []ids.ID) []ids.ID {
	seen := set.Of(owner)
	unique := make([]ids.ID, 0, len(delegates))
	for _, d := range delegates {
		if seen.Contains(d) {
			continue
		}
		seen.Add(d)
		unique = append(unique, d)
	}
	return unique
}

// GetAccount returns the registration of account.
func (l *Ledger) GetAccount(account ids.ID) (*Account, error) {
	data, err := l.accounts.Get(account[:])
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
		}
		return nil, err
	}

	var r accountRecord
	if _, err := Codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", account, err)
	}
	return &Account{
		ID:        account,
		Owner:     r.Owner,
		Delegates: r.Delegates,
	}, nil
}

// AddDelegate lets delegate trade for account. Only the owner may add
// delegates.
func (l *Ledger) AddDelegate(account, caller, delegate ids.ID) error {
	acc, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if acc.Owner != caller {
		return ErrUnauthorized
	}
	if delegate == acc.Owner || slices.Contains(acc.Delegates, delegate) {
		return nil
	}
	acc.Delegates = append(acc.Delegates, delegate)
	return l.putAccount(acc)
}

// Exists reports whether account is registered.
func (l *Ledger) Exists(account ids.ID) (bool, error) {
	return l.accounts.Has(account[:])
}

// IsAuthorized reports whether caller may act for account. Unknown accounts
// authorize no one.
func (l *Ledger) IsAuthorized(account, caller ids.ID) (bool, error) {
	acc, err := l.GetAccount(account)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acc.Owner == caller || slices.Contains(acc.Delegates, caller), nil
}

func (l *Ledger) putAccount(acc *Account) error {
	data, err := Codec.Marshal(CodecVersion, &accountRecord{
		Owner:     acc.Owner,
		Delegates: acc.Delegates,
	})
	if err != nil {
		return err
	}
	return l.accounts.Put(acc.ID[:], data)
}

// Balance returns the quote balance of account.
func (l *Ledger) Balance(account ids.ID) (*big.Int, error) {
	data, err := l.balances.Get(account[:])
	if errors.Is(err, database.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (l *Ledger) setBalance(account ids.ID, balance *big.Int) error {
	if balance.Sign() == 0 {
		return l.balances.Delete(account[:])
	}
	return l.balances.Put(account[:], balance.Bytes())
}

// Mint credits amount to to.
func (l *Ledger) Mint(to ids.ID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.Balance(to)
	if err != nil {
		return err
	}
	return l.setBalance(to, balance.Add(balance, amount))
}

// Burn debits amount from from.
func (l *Ledger) Burn(from ids.ID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, balance, amount)
	}
	return l.setBalance(from, balance.Sub(balance, amount))
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to ids.ID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.Burn(from, amount); err != nil {
		return err
	}
	return l.Mint(to, amount)
}
