package aggregate

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/qtdlabs/muletrace/internal/audit"
)

// TraceSource is the slice of the audit store the aggregator reads.
type TraceSource interface {
	FetchTraces(ctx context.Context, account string) ([]audit.TraceRecord, error)
}

// History is the merged view of every persisted trace for one account.
type History struct {
	Account   string   `json:"account"`
	Accounts  []string `json:"aggregated_paths"`
	PathsUsed int      `json:"rows_used"`
}

type Aggregator struct {
	logger *logrus.Logger
	traces TraceSource
}

func New(logger *logrus.Logger, traces TraceSource) *Aggregator {
	return &Aggregator{
		logger: logger,
		traces: traces,
	}
}

// Flatten merges the given paths into a single sequence containing each
// account exactly once, ordered by first appearance across paths in path
// order then within-path order. It also returns the number of paths consumed.
func Flatten(paths [][]string) ([]string, int) {
	flat := []string{}
	seen := make(map[string]struct{})
	for path := range slices.Values(paths) {
		for account := range slices.Values(path) {
			if _, ok := seen[account]; ok {
				continue
			}
			seen[account] = struct{}{}
			flat = append(flat, account)
		}
	}

	return flat, len(paths)
}

// AccountHistory reads every persisted trace for the account and flattens
// their paths into one deduplicated account sequence.
func (a *Aggregator) AccountHistory(ctx context.Context, account string) (*History, error) {
	records, err := a.traces.FetchTraces(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("aggregate history for %q: %w", account, err)
	}

	paths := make([][]string, 0, len(records))
	for record := range slices.Values(records) {
		paths = append(paths, record.Path)
	}
	flat, used := Flatten(paths)

	a.logger.WithFields(logrus.Fields{
		"account":   account,
		"rows_used": used,
	}).Debug("Aggregated persisted traces")

	return &History{
		Account:   account,
		Accounts:  flat,
		PathsUsed: used,
	}, nil
}
