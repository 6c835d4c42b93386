package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"detectserver/internal/config"
)

const maxRedirects = 10

// Fetcher downloads images over HTTP(S) within a timeout, a size limit and an egress policy.
type Fetcher struct {
	client   *http.Client
	policy   *EgressPolicy
	maxBytes int64
}

// NewFetcher builds a Fetcher from the config.
func NewFetcher(cfg *config.Config) *Fetcher {
	policy := &EgressPolicy{
		AllowPrivate: cfg.FetchAllowPrivate,
		AllowedHosts: cfg.FetchAllowedHosts,
	}

	dialer := &net.Dialer{
		Timeout:   cfg.FetchTimeout,
		KeepAlive: 30 * time.Second,
		Control:   policy.control,
	}

	// Bez proxy: polityka musi widzieć prawdziwy adres docelowy
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.FetchTimeout,
		ExpectContinueTimeout: time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.FetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to unsupported scheme %q", ErrEgressDenied, req.URL.Scheme)
			}
			return policy.CheckHost(req.URL.Hostname())
		},
	}

	return &Fetcher{
		client:   client,
		policy:   policy,
		maxBytes: cfg.MaxImageBytes,
	}
}

// Fetch performs a single GET and returns the body of a 2xx response.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, errors.New("url has no host")
	}
	if err := f.policy.CheckHost(u.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s for url: %s", resp.Status, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}
