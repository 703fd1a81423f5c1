package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
)

// ErrSourceNotPublished marks a source the upstream feed does not provide.
var ErrSourceNotPublished = errors.New("source not published by feed")

type feedStatusError struct {
	status int
	source string
}

func (e *feedStatusError) Error() string {
	return fmt.Sprintf("feed returned %d for source %s", e.status, e.source)
}

// FeedClient pulls per-source extract batches from an upstream warehouse
// feed. Batches land through the same ingest path the push API uses.
type FeedClient struct {
	baseURL string
	client  *http.Client
	retries int
}

func NewFeedClient(baseURL string, timeout time.Duration, retries int) *FeedClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &FeedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: transport},
		retries: retries,
	}
}

// FetchBatch pulls one source's extract from the feed.
func (c *FeedClient) FetchBatch(ctx context.Context, source string) (*BatchRequest, error) {
	endpoint := fmt.Sprintf("%s/extracts/%s", c.baseURL, source)

	var batch BatchRequest
	err := retry(ctx, c.retries, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrSourceNotPublished
		}
		if resp.StatusCode != http.StatusOK {
			return &feedStatusError{status: resp.StatusCode, source: source}
		}

		batch = BatchRequest{}
		return json.NewDecoder(resp.Body).Decode(&batch)
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// PullAll fetches every known source and stores the batches it gets. Sources
// the feed does not publish are skipped; individual failures are logged and
// do not stop the remaining sources. Returns the number of sources stored.
func (c *FeedClient) PullAll(ctx context.Context, svc *Service) int {
	fetched := 0
	for _, source := range models.KnownSources {
		if ctx.Err() != nil {
			return fetched
		}

		batch, err := c.FetchBatch(ctx, source)
		if err != nil {
			if errors.Is(err, ErrSourceNotPublished) {
				continue
			}
			logger.Log.WithError(err).WithField("source", source).Warn("failed to pull source from feed")
			continue
		}
		if len(batch.Rows) == 0 {
			continue
		}

		if _, err := svc.IngestBatch(ctx, source, *batch); err != nil {
			logger.Log.WithError(err).WithField("source", source).Warn("failed to store pulled batch")
			continue
		}
		fetched++
	}
	return fetched
}

// retry runs fn with exponential backoff capped at 2 seconds. It gives up on
// context cancellation and on errors no retry can fix.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}

	return err
}

func isRetriable(err error) bool {
	if errors.Is(err, ErrSourceNotPublished) {
		return false
	}
	var statusErr *feedStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500
	}
	return true
}
