package etherscan

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

// txRecord is the subset of a txlist entry the graph needs.
type txRecord struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
}

// GraphProvider derives transfer edges from an address's normal
// transactions (account/txlist).
type GraphProvider struct {
	client *Client
	retry  label.RetryConfig
}

// GraphOption configures a GraphProvider.
type GraphOption func(*GraphProvider)

// WithGraphRetry sets the backoff applied when txlist is rate limited.
func WithGraphRetry(cfg label.RetryConfig) GraphOption {
	return func(g *GraphProvider) {
		g.retry = cfg
	}
}

// NewGraphProvider creates a GraphProvider using client.
func NewGraphProvider(client *Client, opts ...GraphOption) *GraphProvider {
	g := &GraphProvider{
		client: client,
		retry:  label.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Edges returns one edge per distinct (from, to) pair among the
// transactions of addr, in order of first appearance. An address without
// transactions has no edges.
func (g *GraphProvider) Edges(ctx context.Context, addr model.Address) ([]model.Edge, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", addr.String())
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("sort", "asc")

	var txs []txRecord
	_, err := label.Retry(ctx, g.retry, func(ctx context.Context) error {
		return g.client.call(ctx, params, &txs)
	})
	if errors.Is(err, ErrNoResults) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of %s: %w", addr, err)
	}

	return aggregateEdges(txs), nil
}

// aggregateEdges groups transactions by (from, to). A missing recipient
// falls back to the created contract, then to the zero address.
func aggregateEdges(txs []txRecord) []model.Edge {
	type pair struct {
		from, to model.Address
	}

	index := make(map[pair]int)
	var edges []model.Edge

	for _, tx := range txs {
		to := tx.To
		if to == "" {
			to = tx.ContractAddress
		}
		p := pair{from: parseOrZero(tx.From), to: parseOrZero(to)}

		i, ok := index[p]
		if !ok {
			i = len(edges)
			index[p] = i
			edges = append(edges, model.Edge{From: p.from, To: p.to})
		}
		edges[i].Txs = append(edges[i].Txs, common.HexToHash(tx.Hash))
	}

	return edges
}

func parseOrZero(s string) model.Address {
	addr, err := model.ParseAddress(s)
	if err != nil {
		return model.ZeroAddress
	}
	return addr
}
