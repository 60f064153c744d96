package frontier

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

const maxBodyBytes = 32 << 20

// Fetcher downloads http(s) resources with a per-call timeout, a redirect
// cap and a body size limit.
type Fetcher struct {
	client       *http.Client
	timeout      time.Duration
	allowPrivate bool
}

type FetchResult struct {
	Body        []byte
	ContentType string
	FinalURL    string
	Truncated   bool
}

// NewFetcher builds a Fetcher. allowPrivate disables the loopback and
// private-range guard, for tests against local servers.
func NewFetcher(timeout time.Duration, allowPrivate bool) *Fetcher {
	f := &Fetcher{
		timeout:      timeout,
		allowPrivate: allowPrivate,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   refusePrivateDial,
		}
		transport.DialContext = dialer.DialContext
	}
	f.client = &http.Client{
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// checkRedirect caps the hop count and applies the URL guard to every hop.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("too many redirects")
	}
	if err := validateURL(req.URL.String(), f.allowPrivate); err != nil {
		return fmt.Errorf("redirect to %s refused: %w", req.URL.Redacted(), err)
	}
	return nil
}

// refusePrivateDial sees the resolved address, so hostnames that point into
// private ranges are refused as well.
func refusePrivateDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("unresolved dial address %s", address)
	}
	if isPrivateIP(ip) {
		return fmt.Errorf("access to private IP %s is not allowed", ip)
	}
	return nil
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if err := validateURL(rawURL, f.allowPrivate); err != nil {
		return nil, err
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ResearchGraph-Crawler/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		Truncated:   len(body) == maxBodyBytes,
	}, nil
}

// validateURL checks that a URL is safe to fetch.
func validateURL(rawURL string, allowPrivate bool) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s (only http and https are allowed)", parsedURL.Scheme)
	}
	if allowPrivate {
		return nil
	}

	host := parsedURL.Hostname()
	if host == "localhost" {
		return fmt.Errorf("access to localhost is not allowed")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("access to private IP %s is not allowed", ip)
	}
	return nil
}

var privateBlocks = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, cidr, err := net.ParseCIDR(block)
		if err != nil {
			panic(err)
		}
		nets = append(nets, cidr)
	}
	return nets
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range privateBlocks {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
