package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// Page is a fetched and decoded HTML page
type Page struct {
	RequestedURL string
	FinalURL     *url.URL // after redirects
	StatusCode   int
	ContentType  string
	Body         []byte
}

// Fetcher performs GET requests with a random identity, typed failures and optional retries of transient errors
type Fetcher struct {
	client     *http.Client
	identities *IdentityPool

	maxRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration

	log *logrus.Entry
}

// NewFetcher creates a Fetcher from validated application config
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:            client,
		identities:        NewIdentityPool(cfg.UserAgents),
		maxRetries:        cfg.MaxRetries,
		initialRetryDelay: cfg.InitialRetryDelay,
		maxRetryDelay:     cfg.MaxRetryDelay,
		log:               log,
	}
}

// FetchWithRetry performs req under ctx.
// Only a 2xx response is returned, with its body open for the caller to close.
// Every other outcome returns a nil response and an error wrapping one of
// ErrFetchTimeout, ErrConnection, ErrClientHTTPError, ErrServerHTTPError or ErrOtherHTTPError.
// With max_retries > 0, network errors, 5xx and 429 are retried with exponential backoff
// and exhaustion is reported as ErrRetryFailed joined with the last error.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())
	f.identities.Apply(req)

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context done (%v) after error: %w", err, lastErr)
			}
			return nil, classifyContextErr(err)
		}

		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.maxRetries, "delay": delay}).Warn("Retrying request...")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context done (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// The caller's deadline or cancellation, not a transient failure
				reqLog.Debugf("Request aborted by context: %v", err)
				return nil, classifyContextErr(ctxErr)
			}
			lastErr = classifyTransportError(err)
			reqLog.WithField("attempt", attempt).Debugf("Network error: %v", err)
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil
		case statusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, http.StatusText(statusCode))
			discard(resp)
			continue
		case statusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))
			discard(resp)
			continue
		case statusCode >= 400:
			discard(resp)
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, http.StatusText(statusCode))
		default:
			discard(resp)
			return nil, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, statusCode)
		}
	}

	if f.maxRetries == 0 {
		return nil, lastErr
	}
	reqLog.Debugf("All %d attempts failed. Last error: %v", f.maxRetries+1, lastErr)
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// FetchPage GETs pageURL, negotiating compression, and returns the decoded body.
// timeout bounds the whole exchange including the body read; maxBytes caps the decoded size.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string, timeout time.Duration, maxBytes int64) (*Page, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for '%s': %w", utils.ErrRequestCreation, pageURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", AcceptEncoding)

	resp, err := f.FetchWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	page := &Page{
		RequestedURL: pageURL,
		FinalURL:     resp.Request.URL,
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
	}
	page.Body, err = ReadPageBody(resp, maxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyContextErr(ctx.Err())
		}
		return nil, fmt.Errorf("reading '%s': %w", pageURL, err)
	}
	return page, nil
}

// IsHTML reports whether the page declared an HTML media type (or none at all)
func (p *Page) IsHTML() bool {
	if p.ContentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// backoff is initial * 2^(attempt-1), capped, with +/- 10% jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.initialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (f.maxRetryDelay > 0 && delay > f.maxRetryDelay) {
		delay = f.maxRetryDelay
	}
	return withJitter(delay)
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", utils.ErrFetchTimeout, err)
	}
	return err
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", utils.ErrFetchTimeout, err)
	}
	return fmt.Errorf("%w: %w", utils.ErrConnection, err)
}
