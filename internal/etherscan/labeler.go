package etherscan

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

// ContractLabelerBatch is the largest batch a ContractLabeler accepts.
// Each address costs one request, so batches stay small.
const ContractLabelerBatch = 20

// sourceRecord is the subset of a getsourcecode entry the labeler needs.
type sourceRecord struct {
	ContractName string `json:"ContractName"`
}

// ContractLabeler labels verified contracts with their source contract
// names (contract/getsourcecode). Externally owned accounts and unverified
// contracts have no name and stay unlabelled.
type ContractLabeler struct {
	client *Client
}

var _ label.Provider = (*ContractLabeler)(nil)

// NewContractLabeler creates a ContractLabeler using client.
func NewContractLabeler(client *Client) *ContractLabeler {
	return &ContractLabeler{client: client}
}

// Name implements label.Provider.
func (l *ContractLabeler) Name() string {
	return ProviderName
}

// MaxBatch implements label.Provider.
func (l *ContractLabeler) MaxBatch() int {
	return ContractLabelerBatch
}

// Labels implements label.Provider. The API takes one address per call.
// A transient failure for one address skips it; rate-limit and fatal
// failures abort the batch so the cache can apply its retry policy. The
// labels resolved before the abort are returned with the error.
func (l *ContractLabeler) Labels(ctx context.Context, addrs []model.Address) (map[model.Address]string, error) {
	out := make(map[model.Address]string, len(addrs))

	for _, addr := range addrs {
		name, err := l.contractName(ctx, addr)
		if err != nil {
			if ctx.Err() != nil {
				return out, label.Transient(ProviderName, ctx.Err())
			}
			if errors.Is(err, ErrNoResults) {
				continue
			}
			if kind := label.KindOf(err); kind == label.KindRateLimited || kind == label.KindFatal {
				return out, err
			}
			l.client.logger.Debug("skipping address after etherscan failure",
				"address", addr.String(),
				"error", err,
			)
			continue
		}
		if name != "" {
			out[addr] = name
		}
	}

	return out, nil
}

// contractName returns the concatenated contract names of addr.
func (l *ContractLabeler) contractName(ctx context.Context, addr model.Address) (string, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", addr.String())

	var items []sourceRecord
	if err := l.client.call(ctx, params, &items); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, item := range items {
		b.WriteString(item.ContractName)
	}
	return b.String(), nil
}
