// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/perps/utils/timer/mockable"
)

var (
	// ErrNoObservations indicates no price observations are available.
	ErrNoObservations = errors.New("no price observations available")

	// ErrInvalidWindow indicates an invalid TWAP window duration.
	ErrInvalidWindow = errors.New("TWAP window must be positive")

	// DefaultTWAPWindow is the default TWAP calculation window.
	DefaultTWAPWindow = 5 * time.Minute

	// DefaultReferenceMaxAge is how old the newest observation behind a
	// reference price may be before trading on it is refused.
	DefaultReferenceMaxAge = DefaultTWAPWindow

	// MaxObservations is the maximum number of observations to keep.
	MaxObservations = 1000

	_ Feed = (*TWAPFeed)(nil)
)

// PricePoint represents a single price observation at a specific time.
type PricePoint struct {
	Price     *big.Int
	Timestamp time.Time
}

// TWAP maintains a rolling window of observations for one feed and returns
// their time-weighted average.
type TWAP struct {
	mu           sync.RWMutex
	observations []PricePoint
	window       time.Duration
	feedID       ids.ID
}

// NewTWAP creates a new TWAP with the specified window duration.
func NewTWAP(feedID ids.ID, window time.Duration) (*TWAP, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &TWAP{
		observations: make([]PricePoint, 0, 64),
		window:       window,
		feedID:       feedID,
	}, nil
}

// Record adds a new price observation. Observations must arrive in time
// order; an observation older than the newest one is dropped.
func (t *TWAP) Record(price *big.Int, timestamp time.Time) {
	if price == nil || price.Sign() <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.observations); n > 0 && timestamp.Before(t.observations[n-1].Timestamp) {
		return
	}

	t.observations = append(t.observations, PricePoint{
		Price:     new(big.Int).Set(price),
		Timestamp: timestamp,
	})
	t.prune(timestamp)
}

// prune drops observations superseded before 2x the window, so the one in
// force at the window start is kept. Must be called with lock held.
func (t *TWAP) prune(now time.Time) {
	cutoff := now.Add(-2 * t.window)

	startIdx := 0
	for startIdx < len(t.observations)-1 && !t.observations[startIdx+1].Timestamp.After(cutoff) {
		startIdx++
	}
	if excess := len(t.observations) - startIdx - MaxObservations; excess > 0 {
		startIdx += excess
	}
	if startIdx > 0 {
		n := copy(t.observations, t.observations[startIdx:])
		t.observations = t.observations[:n]
	}
}

// PriceAt returns the time-weighted average over (at-window, at]. Each
// observation holds until the next one or until at, and the observation in
// force when the window opens is counted from the window start.
func (t *TWAP) PriceAt(at time.Time) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Observations published after at are not yet visible.
	visible := sort.Search(len(t.observations), func(i int) bool {
		return t.observations[i].Timestamp.After(at)
	})
	if visible == 0 {
		return nil, ErrNoObservations
	}
	points := t.observations[:visible]

	from := at.Add(-t.window)
	sum := new(big.Int)
	var weight int64
	end := at
	for i := len(points) - 1; i >= 0 && end.After(from); i-- {
		begin := points[i].Timestamp
		if begin.Before(from) {
			begin = from
		}
		if secs := int64(end.Sub(begin) / time.Second); secs > 0 {
			sum.Add(sum, new(big.Int).Mul(points[i].Price, big.NewInt(secs)))
			weight += secs
		}
		end = points[i].Timestamp
	}

	if weight == 0 {
		return new(big.Int).Set(points[len(points)-1].Price), nil
	}
	return sum.Quo(sum, big.NewInt(weight)), nil
}

// Last returns the most recent observation.
func (t *TWAP) Last() (PricePoint, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.observations) == 0 {
		return PricePoint{}, ErrNoObservations
	}
	last := t.observations[len(t.observations)-1]
	return PricePoint{
		Price:     new(big.Int).Set(last.Price),
		Timestamp: last.Timestamp,
	}, nil
}

// ObservationCount returns the number of price observations.
func (t *TWAP) ObservationCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observations)
}

// TWAPFeed is a Feed returning time-weighted averages per feed id. It is fed
// by Observe, usually subscribed to a PushFeed.
type TWAPFeed struct {
	mu     sync.RWMutex
	twaps  map[ids.ID]*TWAP
	window time.Duration
	clock  *mockable.Clock
}

// NewTWAPFeed creates a multi-feed TWAP source.
func NewTWAPFeed(window time.Duration, clock *mockable.Clock) *TWAPFeed {
	if window <= 0 {
		window = DefaultTWAPWindow
	}
	if clock == nil {
		clock = &mockable.Clock{}
	}
	return &TWAPFeed{
		twaps:  make(map[ids.ID]*TWAP),
		window: window,
		clock:  clock,
	}
}

// Observe records an observation. It satisfies Observer.
func (f *TWAPFeed) Observe(obs Observation) {
	f.getOrCreate(obs.FeedID).Record(obs.Price, time.Unix(obs.PublishTime, 0))
}

func (f *TWAPFeed) getOrCreate(feedID ids.ID) *TWAP {
	f.mu.Lock()
	defer f.mu.Unlock()

	if twap, ok := f.twaps[feedID]; ok {
		return twap
	}
	twap, _ := NewTWAP(feedID, f.window)
	f.twaps[feedID] = twap
	return twap
}

// GetPrice returns the TWAP of feedID at the clock's current time. The
// publish time is that of the newest observation.
func (f *TWAPFeed) GetPrice(_ context.Context, feedID ids.ID) (Price, error) {
	f.mu.RLock()
	twap, ok := f.twaps[feedID]
	f.mu.RUnlock()
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}

	last, err := twap.Last()
	if err != nil {
		return Price{}, err
	}
	at := f.clock.Time()
	if at.Before(last.Timestamp) {
		at = last.Timestamp
	}
	value, err := twap.PriceAt(at)
	if err != nil {
		return Price{}, err
	}
	return Price{
		Value:       value,
		PublishTime: last.Timestamp.Unix(),
	}, nil
}
