// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orders

import (
	"bytes"

	"github.com/google/btree"

	"github.com/luxfi/perps/vms/perpsvm/perpetuals"
)

const indexDegree = 32

// pendingIndex orders pending orders by commitment time so the keeper can
// find expired ones without scanning state.
type pendingIndex struct {
	tree *btree.BTreeG[*perpetuals.Order]
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{
		tree: btree.NewG(indexDegree, lessOrder),
	}
}

func lessOrder(a, b *perpetuals.Order) bool {
	if a.CommitmentTime != b.CommitmentTime {
		return a.CommitmentTime < b.CommitmentTime
	}
	if a.Market != b.Market {
		return a.Market < b.Market
	}
	return bytes.Compare(a.Account[:], b.Account[:]) < 0
}

func (i *pendingIndex) add(o *perpetuals.Order) {
	i.tree.ReplaceOrInsert(o.Clone())
}

func (i *pendingIndex) remove(o *perpetuals.Order) {
	i.tree.Delete(o)
}

func (i *pendingIndex) len() int {
	return i.tree.Len()
}

// all returns copies of every order, oldest first.
func (i *pendingIndex) all() []*perpetuals.Order {
	orders := make([]*perpetuals.Order, 0, i.tree.Len())
	i.tree.Ascend(func(o *perpetuals.Order) bool {
		orders = append(orders, o.Clone())
		return true
	})
	return orders
}

// committedBefore calls fn on orders committed strictly before t, oldest
// first, until fn returns false.
func (i *pendingIndex) committedBefore(t int64, fn func(*perpetuals.Order) bool) {
	i.tree.AscendLessThan(&perpetuals.Order{CommitmentTime: t}, fn)
}
