package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// TxHash identifies one underlying transaction of an edge.
type TxHash = common.Hash

// Edge is an observed transfer relationship between two addresses.
// A single vertex pair aggregates every transaction that produced it.
type Edge struct {
	// From is the sending address.
	From Address

	// To is the receiving address.
	To Address

	// Txs are the hashes of the transactions aggregated into this edge,
	// in the order the provider returned them.
	Txs []TxHash
}

// Direction classifies an edge relative to the node being expanded.
type Direction int

const (
	// DirectionNone means the edge does not touch the expanded node.
	DirectionNone Direction = iota
	// DirectionForward means the expanded node sent value outward.
	DirectionForward
	// DirectionBackward means the expanded node received value.
	DirectionBackward
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// DirectionFrom classifies e relative to the node at. The same transfer is
// forward when expanding its sender and backward when expanding its receiver.
// A self-transfer counts as forward.
func (e Edge) DirectionFrom(at Address) Direction {
	switch at {
	case e.From:
		return DirectionForward
	case e.To:
		return DirectionBackward
	default:
		return DirectionNone
	}
}

// Counterparty returns the address on the other side of the edge from at.
func (e Edge) Counterparty(at Address) Address {
	if e.From == at {
		return e.To
	}
	return e.From
}
