// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"math/big"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/perps/vms/perpsvm/fixedpoint"
)

func TestUpdateRoundTrip(t *testing.T) {
	require := require.New(t)

	observations := []Observation{
		{FeedID: ids.GenerateTestID(), Price: fixedpoint.New(1_050), PublishTime: 1_015},
		{FeedID: ids.GenerateTestID(), Price: fixedpoint.MustParse("0.000000000000000001"), PublishTime: 0},
	}
	data, err := EncodeUpdate(observations)
	require.NoError(err)
	require.Len(data, headerLen+2*entryLen)

	decoded, err := DecodeUpdate(data)
	require.NoError(err)
	require.Len(decoded, 2)
	for i := range observations {
		require.Equal(observations[i].FeedID, decoded[i].FeedID)
		require.Zero(observations[i].Price.Cmp(decoded[i].Price))
		require.Equal(observations[i].PublishTime, decoded[i].PublishTime)
	}
}

func TestEncodeUpdateRejects(t *testing.T) {
	tests := []struct {
		name         string
		observations []Observation
	}{
		{name: "empty", observations: nil},
		{name: "zero price", observations: []Observation{{Price: big.NewInt(0)}}},
		{name: "nil price", observations: []Observation{{}}},
		{name: "negative time", observations: []Observation{{Price: big.NewInt(1), PublishTime: -1}}},
		{name: "overflow", observations: []Observation{{Price: new(big.Int).Lsh(big.NewInt(1), 256)}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := EncodeUpdate(test.observations)
			require.ErrorIs(t, err, ErrMalformedUpdate)
		})
	}
}

func TestDecodeUpdateRejects(t *testing.T) {
	valid, err := EncodeUpdate([]Observation{{FeedID: ids.GenerateTestID(), Price: big.NewInt(1), PublishTime: 1}})
	require.NoError(t, err)

	badVersion := append([]byte{}, valid...)
	badVersion[0] = 9

	zeroCount := append([]byte{}, valid...)
	zeroCount[1], zeroCount[2] = 0, 0

	zeroPrice := append([]byte{}, valid...)
	for i := headerLen + idLen; i < headerLen+idLen+32; i++ {
		zeroPrice[i] = 0
	}

	hugeTime := append([]byte{}, valid...)
	hugeTime[headerLen+idLen+32] = 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{name: "nil", data: nil},
		{name: "short header", data: []byte{UpdateVersion, 0}},
		{name: "bad version", data: badVersion},
		{name: "zero count", data: zeroCount},
		{name: "truncated", data: valid[:len(valid)-1]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0)},
		{name: "zero price", data: zeroPrice},
		{name: "publish time overflow", data: hugeTime},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeUpdate(test.data)
			require.ErrorIs(t, err, ErrMalformedUpdate)
		})
	}
}
