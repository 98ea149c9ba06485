// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state manages persistent state for the perps VM.
//
// All writes go to a version database layered over the node database. They
// become durable on Commit and are discarded by Abort, which lets every
// operation either apply in full or leave no trace.
package state

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"

	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

// DefaultMarketCacheSize is the number of committed markets kept decoded.
const DefaultMarketCacheSize = 256

var (
	ErrCorrupted = errors.New("state corrupted")

	// Database prefixes
	prefixMarket   = []byte("market")
	prefixOrder    = []byte("order")
	prefixPosition = []byte("position")
	prefixMeta     = []byte("meta")

	keyInitialized = []byte("initialized")

	// Separates the market symbol from the account in order and position
	// keys, so a market's entries share a prefix.
	keySeparator = byte('/')
)

// State is the market, order and position store.
type State struct {
	mu sync.Mutex

	baseDB database.Database
	db     *versiondb.Database

	markets   database.Database
	orders    database.Database
	positions database.Database
	meta      database.Database

	// Decoded committed markets. Markets written since the last commit are
	// tracked in dirty and always read from db.
	marketCache *lru.Cache
	dirty       map[string]struct{}
}

// New creates a state manager on top of db.
func New(db database.Database, marketCacheSize int) (*State, error) {
	if marketCacheSize <= 0 {
		marketCacheSize = DefaultMarketCacheSize
	}
	marketCache, err := lru.New(marketCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create market cache: %w", err)
	}

	vdb := versiondb.New(db)
	return &State{
		baseDB:      db,
		db:          vdb,
		markets:     prefixdb.New(prefixMarket, vdb),
		orders:      prefixdb.New(prefixOrder, vdb),
		positions:   prefixdb.New(prefixPosition, vdb),
		meta:        prefixdb.New(prefixMeta, vdb),
		marketCache: marketCache,
		dirty:       make(map[string]struct{}),
	}, nil
}

// DB returns the versioned database. Stores sharing it commit and abort
// together with the state.
func (s *State) DB() database.Database {
	return s.db
}

// IsInitialized reports whether genesis has been applied.
func (s *State) IsInitialized() (bool, error) {
	return s.meta.Has(keyInitialized)
}

// SetInitialized marks genesis as applied.
func (s *State) SetInitialized() error {
	return s.meta.Put(keyInitialized, []byte{1})
}

// GetMarket returns a copy of the market with the given symbol.
func (s *State) GetMarket(id string) (*perpetuals.Market, error) {
	s.mu.Lock()
	_, dirty := s.dirty[id]
	s.mu.Unlock()

	if !dirty {
		if cached, ok := s.marketCache.Get(id); ok {
			return cached.(*perpetuals.Market).Clone(), nil
		}
	}

	data, err := s.markets.Get([]byte(id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", perpetuals.ErrMarketNotFound, id)
		}
		return nil, err
	}
	m, err := decodeMarket(data)
	if err != nil {
		return nil, err
	}
	if !dirty {
		s.marketCache.Add(id, m.Clone())
	}
	return m, nil
}

// HasMarket reports whether a market with the given symbol exists.
func (s *State) HasMarket(id string) (bool, error) {
	return s.markets.Has([]byte(id))
}

// PutMarket writes m.
func (s *State) PutMarket(m *perpetuals.Market) error {
	data, err := Codec.Marshal(CodecVersion, newMarketRecord(m))
	if err != nil {
		return err
	}
	if err := s.markets.Put([]byte(m.ID), data); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty[m.ID] = struct{}{}
	s.mu.Unlock()
	s.marketCache.Remove(m.ID)
	return nil
}

// Markets returns every market ordered by symbol.
func (s *State) Markets() ([]*perpetuals.Market, error) {
	it := s.markets.NewIterator()
	defer it.Release()

	var markets []*perpetuals.Market
	for it.Next() {
		m, err := decodeMarket(it.Value())
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, it.Error()
}

// GetOrder returns the order slot of account in market. An empty slot is
// returned as an order with a zero size delta.
func (s *State) GetOrder(account ids.ID, market string) (*perpetuals.Order, error) {
	data, err := s.orders.Get(accountKey(market, account))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &perpetuals.Order{Account: account, Market: market}, nil
		}
		return nil, err
	}
	return decodeOrder(data)
}

// PutOrder writes o.
func (s *State) PutOrder(o *perpetuals.Order) error {
	data, err := Codec.Marshal(CodecVersion, newOrderRecord(o))
	if err != nil {
		return err
	}
	return s.orders.Put(accountKey(o.Market, o.Account), data)
}

// DeleteOrder clears the order slot of account in market.
func (s *State) DeleteOrder(account ids.ID, market string) error {
	return s.orders.Delete(accountKey(market, account))
}

// Orders returns every pending order.
func (s *State) Orders() ([]*perpetuals.Order, error) {
	it := s.orders.NewIterator()
	defer it.Release()

	var orders []*perpetuals.Order
	for it.Next() {
		o, err := decodeOrder(it.Value())
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, it.Error()
}

// GetPosition returns the position of account in market. An account that
// never traded gets an empty position.
func (s *State) GetPosition(account ids.ID, market string) (*perpetuals.Position, error) {
	data, err := s.positions.Get(accountKey(market, account))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return perpetuals.NewPosition(account, market), nil
		}
		return nil, err
	}
	return decodePosition(data)
}

// PutPosition writes p. An empty position is deleted.
func (s *State) PutPosition(p *perpetuals.Position) error {
	key := accountKey(p.Market, p.Account)
	if p.IsEmpty() {
		return s.positions.Delete(key)
	}
	data, err := Codec.Marshal(CodecVersion, newPositionRecord(p))
	if err != nil {
		return err
	}
	return s.positions.Put(key, data)
}

// Positions returns every stored position in market.
func (s *State) Positions(market string) ([]*perpetuals.Position, error) {
	it := s.positions.NewIteratorWithPrefix(marketPrefix(market))
	defer it.Release()

	var positions []*perpetuals.Position
	for it.Next() {
		p, err := decodePosition(it.Value())
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, it.Error()
}

// Commit writes all pending changes to the underlying database.
func (s *State) Commit() error {
	if err := s.db.Commit(); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()
	return nil
}

// Abort discards all pending changes.
func (s *State) Abort() {
	s.db.Abort()
	s.mu.Lock()
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()
}

// Close aborts pending changes and closes the database.
func (s *State) Close() error {
	s.Abort()
	s.marketCache.Purge()
	return s.db.Close()
}

func marketPrefix(market string) []byte {
	return append([]byte(market), keySeparator)
}

func accountKey(market string, account ids.ID) []byte {
	return append(marketPrefix(market), account[:]...)
}

func decodeMarket(data []byte) (*perpetuals.Market, error) {
	var r marketRecord
	if _, err := Codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return r.market()
}

func decodeOrder(data []byte) (*perpetuals.Order, error) {
	var r orderRecord
	if _, err := Codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return r.order()
}

func decodePosition(data []byte) (*perpetuals.Position, error) {
	var r positionRecord
	if _, err := Codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return r.position()
}
