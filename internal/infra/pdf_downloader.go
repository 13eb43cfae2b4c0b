package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	maxDocumentRedirects = 5
	maxDocumentBytes     = 20 << 20
)

var (
	ErrEmptyDocument    = errors.New("document body is empty")
	ErrTooManyRedirects = errors.New("too many redirects")
)

type DocumentDownloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPDownloader fetches invoice PDFs. The bearer credential is only ever
// sent to hosts accepted by trusted.
type HTTPDownloader struct {
	client  *http.Client
	token   string
	trusted func(host string) bool
}

func NewHTTPDownloader(token string, timeout time.Duration) *HTTPDownloader {
	return newHTTPDownloader(token, timeout, IsBillingHost)
}

func newHTTPDownloader(token string, timeout time.Duration, trusted func(string) bool) *HTTPDownloader {
	d := &HTTPDownloader{token: token, trusted: trusted}
	d.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxDocumentRedirects {
				return ErrTooManyRedirects
			}
			d.authorize(req)
			return nil
		},
	}
	return d
}

// IsBillingHost matches stripe.com and its subdomains.
func IsBillingHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == "stripe.com" || strings.HasSuffix(host, ".stripe.com")
}

func (d *HTTPDownloader) authorize(req *http.Request) {
	if d.token != "" && d.trusted(req.URL.Host) {
		req.Header.Set("Authorization", "Bearer "+d.token)
		return
	}
	req.Header.Del("Authorization")
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read document body: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyDocument
	}
	return body, nil
}

type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
