// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/cache/lru"
	"github.com/luxfi/constants"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// DefaultReplayCacheSize is the number of recent payload hashes remembered.
const DefaultReplayCacheSize = constants.KiB

var _ Updater = (*PushFeed)(nil)

// Observer is notified of every observation a PushFeed accepts.
type Observer func(Observation)

// PushFeed keeps the newest pushed price per feed.
type PushFeed struct {
	log log.Logger

	mu        sync.RWMutex
	latest    map[ids.ID]Observation
	observers []Observer

	// Hashes of payloads already applied. Replaying one is a no-op.
	seen *lru.Cache[ids.ID, struct{}]
}

// NewPushFeed returns an empty push feed.
func NewPushFeed(logger log.Logger, replayCacheSize int) *PushFeed {
	if replayCacheSize <= 0 {
		replayCacheSize = DefaultReplayCacheSize
	}
	return &PushFeed{
		log:    logger,
		latest: make(map[ids.ID]Observation),
		seen:   lru.NewCache[ids.ID, struct{}](replayCacheSize),
	}
}

// Subscribe registers o to receive accepted observations. Observers run
// synchronously after the feed lock is released.
func (p *PushFeed) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// PushUpdate applies an update payload. Observations older than the price
// already held for their feed are ignored.
func (p *PushFeed) PushUpdate(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payloadID := ids.ID(sha256.Sum256(data))

	p.mu.Lock()
	if _, ok := p.seen.Get(payloadID); ok {
		p.mu.Unlock()
		return nil
	}

	observations, err := DecodeUpdate(data)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	accepted := make([]Observation, 0, len(observations))
	for _, obs := range observations {
		if prev, ok := p.latest[obs.FeedID]; ok && prev.PublishTime >= obs.PublishTime {
			continue
		}
		p.latest[obs.FeedID] = obs
		accepted = append(accepted, obs)
	}
	p.seen.Put(payloadID, struct{}{})
	observers := p.observers
	p.mu.Unlock()

	p.log.Debug("price update applied",
		log.Int("entries", len(observations)),
		log.Int("accepted", len(accepted)),
	)

	for _, obs := range accepted {
		for _, o := range observers {
			o(obs)
		}
	}
	return nil
}

// Push is a convenience wrapper that encodes and pushes a single price.
func (p *PushFeed) Push(ctx context.Context, feedID ids.ID, price *big.Int, publishTime int64) error {
	data, err := EncodeUpdate([]Observation{{
		FeedID:      feedID,
		Price:       price,
		PublishTime: publishTime,
	}})
	if err != nil {
		return err
	}
	return p.PushUpdate(ctx, data)
}

// GetPrice returns the newest price pushed for feedID.
func (p *PushFeed) GetPrice(_ context.Context, feedID ids.ID) (Price, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	obs, ok := p.latest[feedID]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	return Price{
		Value:       new(big.Int).Set(obs.Price),
		PublishTime: obs.PublishTime,
	}, nil
}

// Len returns the number of feeds with a price.
func (p *PushFeed) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.latest)
}
