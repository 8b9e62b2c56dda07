package score

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Remote calls an external scoring service over HTTP. The wire contract is a
// JSON POST of {"txn_id": ...} answered with {"score": ...}.
type Remote struct {
	logger     *logrus.Logger
	httpClient *http.Client
	addr       string
}

func NewRemote(logger *logrus.Logger, httpClient *http.Client, addr string) *Remote {
	return &Remote{
		logger:     logger,
		httpClient: httpClient,
		addr:       addr,
	}
}

func (r *Remote) Score(ctx context.Context, txnID string) (float64, error) {
	payload := map[string]any{
		"txn_id": txnID,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("could not marshal scoring payload: %w", err)
	}

	resp, err := r.doRequestWithRetry(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("do scoring request with retry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		r.logger.WithField("response", string(body)).Error("Scoring service responded with unexpected status code")
		return 0, fmt.Errorf("received unexpected status: %s", resp.Status)
	}

	type Response struct {
		Score *float64 `json:"score"`
	}
	var response Response
	err = json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return 0, fmt.Errorf("decode scoring response body: %w", err)
	}
	if response.Score == nil {
		return 0, errors.New("scoring response carries no score")
	}
	if *response.Score < 0 || *response.Score > 1 {
		return 0, fmt.Errorf("scoring service returned score %f out of [0, 1]", *response.Score)
	}

	return *response.Score, nil
}

func (r *Remote) doRequestWithRetry(ctx context.Context, data []byte) (*http.Response, error) {
	bk := backoff.WithContext(newExponentialBackoffConfig(), ctx)
	resp, err := backoff.RetryWithData[*http.Response](func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.addr, bytes.NewBuffer(data))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("could not make new request with context: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Length", strconv.Itoa(len(data)))

		resp, err := r.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, backoff.Permanent(fmt.Errorf("could not make http call: %w", err))
			}
			r.logger.WithError(err).Error("Failed to reach scoring service, retrying...")
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		return resp, nil
	}, bk)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func newExponentialBackoffConfig() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Second*3),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(time.Millisecond*100),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
