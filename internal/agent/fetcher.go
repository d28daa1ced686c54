package agent

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/resilience"
)

// maxContentBytes caps fetched knowledge-base content so one oversized
// source cannot blow out the prompt.
const maxContentBytes = 1 << 20

// Fetcher resolves a knowledge-base reference to its content.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// KnowledgeFetcher resolves http(s) references over the network and
// treats anything else as a job-store key.
type KnowledgeFetcher struct {
	httpClient *http.Client
	store      jobstore.Store
}

// NewKnowledgeFetcher creates a fetcher with the given per-request timeout.
func NewKnowledgeFetcher(store jobstore.Store, timeout time.Duration) *KnowledgeFetcher {
	return &KnowledgeFetcher{
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
	}
}

func (f *KnowledgeFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return f.fetchHTTP(ctx, ref)
	}
	data, err := f.store.Get(ctx, ref)
	if err != nil {
		return "", eris.Wrapf(err, "fetch knowledge base %s", ref)
	}
	if data == nil {
		return "", eris.Errorf("knowledge base %s not found", ref)
	}
	return string(data), nil
}

func (f *KnowledgeFetcher) fetchHTTP(ctx context.Context, url string) (string, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("knowledge", "fetch")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", eris.Wrapf(err, "fetch %s", url)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return "", eris.Wrapf(err, "fetch %s", url)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("fetch %s: status %d", url, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return "", resilience.NewTransientError(err, resp.StatusCode)
			}
			return "", err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
		if err != nil {
			return "", eris.Wrapf(err, "read %s", url)
		}
		return string(body), nil
	})
}
