package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/util"
	"go.uber.org/zap"
)

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

const (
	fetchAttempts    = 3
	fetchBaseBackoff = 500 * time.Millisecond
)

// HTTPLoader reads extractor output published under a base URL as
// <base>/<year>/<source>/document.json. Document IDs must be supplied by the
// caller since plain HTTP offers no listing.
type HTTPLoader struct {
	client   *http.Client
	baseURL  string
	maxBytes int64
	log      *zap.Logger
}

// NewHTTPLoader creates an HTTP loader. maxBytes caps each response body.
func NewHTTPLoader(baseURL string, timeout time.Duration, maxBytes int64, httpProxy, httpsProxy, noProxy string, log *zap.Logger) *HTTPLoader {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPLoader{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		log:      log,
	}
}

func (l *HTTPLoader) url(id string) string {
	id = strings.Trim(id, "/")
	if strings.HasSuffix(id, ".json") {
		return l.baseURL + "/" + id
	}
	return l.baseURL + "/" + id + "/" + DocumentFile
}

// Load fetches one document, retrying 429, 5xx and connection failures
func (l *HTTPLoader) Load(ctx context.Context, id string) (*model.Document, error) {
	url := l.url(id)

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			backoff := fetchBaseBackoff << (attempt - 1)
			l.log.Debug("retrying document fetch", zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(lastErr))
			fetchSleepFunc(backoff)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := l.fetch(ctx, url)
		if err == nil {
			return DecodeDocument(id, data)
		}
		lastErr = err
		if !isRetryableFetchError(err) {
			break
		}
	}
	return nil, lastErr
}

func (l *HTTPLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("fetch %s: %w", url, err), retryable: !errors.Is(err, context.Canceled)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, &fetchError{err: fmt.Errorf("unexpected status: %s", resp.Status), retryable: retryable}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

type fetchError struct {
	err       error
	retryable bool
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func isRetryableFetchError(err error) bool {
	var fe *fetchError
	return errors.As(err, &fe) && fe.retryable
}

// List is unsupported over plain HTTP
func (l *HTTPLoader) List(context.Context) ([]string, error) {
	return nil, &model.ConfigurationError{Field: "source.kind", Reason: "the http source cannot list documents; pass an ID file"}
}
