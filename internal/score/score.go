// Package score is the boundary to the fraud-scoring collaborator. The core
// only needs a function from transaction id to probability; model details
// stay behind the Scorer interface.
package score

import (
	"context"
	"hash/fnv"
	"math"
)

// Scorer maps a transaction id to a fraud probability in [0, 1].
type Scorer interface {
	Score(ctx context.Context, txnID string) (float64, error)
}

// Heuristic is a deterministic advisory scorer used when no model endpoint
// is configured. It folds simple character statistics of the transaction id
// into a stable pseudo-probability.
type Heuristic struct{}

func (Heuristic) Score(_ context.Context, txnID string) (float64, error) {
	const maxChars = 20

	var sum, count float64
	for _, c := range txnID {
		if count == maxChars {
			break
		}
		sum += float64(c)
		count++
	}
	var mean, variance float64
	if count > 0 {
		mean = sum / count
		var folded float64
		for _, c := range txnID {
			if folded == count {
				break
			}
			variance += (float64(c) - mean) * (float64(c) - mean)
			folded++
		}
		variance /= count
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(txnID))
	_, _ = h.Write([]byte{byte(int(mean) % 256), byte(int(variance) % 256), byte(len(txnID) % 256)})
	return float64(h.Sum64()%math.MaxUint32) / float64(math.MaxUint32), nil
}
