package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Markers written in place of a label. They are part of the line format
// consumed by the visualization step and must not change.
const (
	// Unlabelled marks a node no label provider could explain.
	Unlabelled = "UNLABELLED"
	// Starter marks the seed node of a crawl.
	Starter = "STARTER"
)

// Line prefixes of the event stream.
const (
	nodePrefix = "Node: "
	edgePrefix = "Edge:"
)

// ErrUnknownRecord is returned by ParseLine for lines that are neither
// node nor edge records.
var ErrUnknownRecord = errors.New("unknown event record")

// Event is one observation emitted by a crawl.
type Event interface {
	// Line renders the event in its stable one-line textual form.
	Line() string
}

// NodeEvent reports a newly discovered address.
type NodeEvent struct {
	Address Address
	// Label is the resolved label, Unlabelled, or Starter for the seed.
	Label string
	Depth int
}

// IsLabelled reports whether the node carries a provider label.
func (n NodeEvent) IsLabelled() bool {
	return n.Label != "" && n.Label != Unlabelled && n.Label != Starter
}

// Line renders the node record:
//
//	Node: id=[0xabc...] label=[exchange] depth=[1]
func (n NodeEvent) Line() string {
	label := n.Label
	if label == "" {
		label = Unlabelled
	}
	return fmt.Sprintf("%sid=[%s] label=[%s] depth=[%d]", nodePrefix, n.Address, label, n.Depth)
}

// EdgeEvent reports an observed transfer relationship.
type EdgeEvent struct {
	From Address
	To   Address
	Txs  []TxHash
}

// NewEdgeEvent builds the event for an edge.
func NewEdgeEvent(e Edge) EdgeEvent {
	return EdgeEvent{From: e.From, To: e.To, Txs: e.Txs}
}

// edgeRecord is the JSON body of an edge line.
type edgeRecord struct {
	From Address  `json:"from"`
	To   Address  `json:"to"`
	Txs  []TxHash `json:"txs"`
}

// Line renders the edge record:
//
//	Edge:{"from":"0x...","to":"0x...","txs":["0x..."]}
func (e EdgeEvent) Line() string {
	txs := e.Txs
	if txs == nil {
		txs = []TxHash{}
	}
	// Addresses and hashes marshal as plain hex strings, so this cannot fail.
	body, _ := json.Marshal(edgeRecord{From: e.From, To: e.To, Txs: txs}) //nolint:errcheck,errchkjson
	return edgePrefix + string(body)
}

// nodeLinePattern matches a rendered node record.
var nodeLinePattern = regexp.MustCompile(`^Node: id=\[(0x[0-9a-fA-F]{40})\] label=\[(.*)\] depth=\[(\d+)\]$`)

// ParseLine parses one line of the event stream back into an Event.
// Surrounding whitespace is ignored.
func ParseLine(line string) (Event, error) {
	line = strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(line, edgePrefix):
		var rec edgeRecord
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, edgePrefix)), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse edge record: %w", err)
		}
		return EdgeEvent(rec), nil

	case strings.HasPrefix(line, nodePrefix):
		m := nodeLinePattern.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed node record %q", ErrUnknownRecord, line)
		}
		addr, err := ParseAddress(m[1])
		if err != nil {
			return nil, fmt.Errorf("failed to parse node address: %w", err)
		}
		depth, err := strconv.Atoi(m[3])
		if err != nil {
			return nil, fmt.Errorf("failed to parse node depth: %w", err)
		}
		return NodeEvent{Address: addr, Label: m[2], Depth: depth}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, line)
	}
}
