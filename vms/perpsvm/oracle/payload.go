// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils/wrappers"
)

// Update payload layout, big endian:
//
//	version     uint8
//	count       uint16
//	count times:
//	  feedID      [32]byte
//	  price       uint256
//	  publishTime uint64
const (
	UpdateVersion = 1

	idLen     = ids.IDLen
	priceLen  = 32
	headerLen = wrappers.ByteLen + wrappers.ShortLen
	entryLen  = idLen + priceLen + wrappers.LongLen

	// MaxUpdateEntries bounds a single payload.
	MaxUpdateEntries = 256
)

// EncodeUpdate serializes observations into an update payload.
func EncodeUpdate(observations []Observation) ([]byte, error) {
	if len(observations) == 0 || len(observations) > MaxUpdateEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrMalformedUpdate, len(observations))
	}

	size := headerLen + len(observations)*entryLen
	p := wrappers.Packer{
		MaxSize: size,
		Bytes:   make([]byte, 0, size),
	}
	p.PackByte(UpdateVersion)
	p.PackShort(uint16(len(observations)))
	for _, obs := range observations {
		if obs.Price == nil || obs.Price.Sign() <= 0 || obs.PublishTime < 0 {
			return nil, fmt.Errorf("%w: invalid observation for %s", ErrMalformedUpdate, obs.FeedID)
		}
		price, overflow := uint256.FromBig(obs.Price)
		if overflow {
			return nil, fmt.Errorf("%w: price overflows 256 bits", ErrMalformedUpdate)
		}
		priceBytes := price.Bytes32()

		p.PackFixedBytes(obs.FeedID[:])
		p.PackFixedBytes(priceBytes[:])
		p.PackLong(uint64(obs.PublishTime))
	}
	if p.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, p.Err)
	}
	return p.Bytes, nil
}

// DecodeUpdate parses an update payload.
func DecodeUpdate(data []byte) ([]Observation, error) {
	p := wrappers.Packer{Bytes: data}
	version := p.UnpackByte()
	count := int(p.UnpackShort())
	if p.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, p.Err)
	}
	if version != UpdateVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrMalformedUpdate, version)
	}
	if count == 0 || count > MaxUpdateEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrMalformedUpdate, count)
	}
	if len(data) != headerLen+count*entryLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedUpdate, headerLen+count*entryLen, len(data))
	}

	observations := make([]Observation, 0, count)
	for i := 0; i < count; i++ {
		feedID, err := ids.ToID(p.UnpackFixedBytes(idLen))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, err)
		}
		price := new(uint256.Int).SetBytes32(p.UnpackFixedBytes(priceLen))
		publishTime := p.UnpackLong()
		if p.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, p.Err)
		}

		if price.IsZero() {
			return nil, fmt.Errorf("%w: zero price for %s", ErrMalformedUpdate, feedID)
		}
		if publishTime > math.MaxInt64 {
			return nil, fmt.Errorf("%w: publish time %d out of range", ErrMalformedUpdate, publishTime)
		}

		observations = append(observations, Observation{
			FeedID:      feedID,
			Price:       price.ToBig(),
			PublishTime: int64(publishTime),
		})
	}
	return observations, nil
}
