// Package httpclient provides the outbound HTTP client used for dump downloads,
// distribution probes and SPARQL requests.
package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Timeout        time.Duration // 0 = no overall timeout (long dump downloads)
	UserAgent      string
	AllowedSchemes []string // Default: ["http", "https"]
	MaxRedirects   *int     // Default: 10
	BlockPrivateIP bool     // Refuse loopback, private and link-local targets

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. 0 = unbounded.
	ResponseHeaderTimeout time.Duration
	// ReadIdleTimeout fails a response whose body stops arriving for this
	// long, without capping the total transfer time. 0 = unbounded.
	ReadIdleTimeout time.Duration
}

// Client wraps http.Client with a user agent, URL validation and optional
// private network blocking.
type Client struct {
	*http.Client
	userAgent      string
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
}

// New creates a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		Client:         &http.Client{Timeout: opts.Timeout},
		userAgent:      opts.UserAgent,
		allowedSchemes: []string{"http", "https"},
		blockPrivateIP: opts.BlockPrivateIP,
		maxRedirects:   10,
	}
	if opts.AllowedSchemes != nil {
		c.allowedSchemes = opts.AllowedSchemes
	}
	if opts.MaxRedirects != nil {
		c.maxRedirects = *opts.MaxRedirects
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.ResponseHeaderTimeout

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dial := dialer.DialContext
	if c.blockPrivateIP {
		// Resolve before dialing so DNS answers pointing inward are refused too
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, errors.Newf("private IP address blocked: %s", ip)
				}
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		}
	}
	if opts.ReadIdleTimeout > 0 {
		dial = withReadIdleTimeout(dial, opts.ReadIdleTimeout)
	}
	transport.DialContext = dial
	c.Transport = transport

	return c
}

// Wrap wraps an existing http.Client without private network blocking.
// Intended for tests against httptest servers.
func Wrap(client *http.Client) *Client {
	return &Client{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}
}

// NewRequest builds a request carrying the client's user agent.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid request for %s", rawURL)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Do validates the request URL before executing it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrapf(err, "request to %s blocked", req.URL.Redacted())
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.Client.Do(req)
}

// Get issues a GET bound to ctx.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head issues a HEAD bound to ctx.
func (c *Client) Head(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// ValidateURL parses and validates a URL string.
func (c *Client) ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func withReadIdleTimeout(dial dialFunc, timeout time.Duration) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &idleTimeoutConn{Conn: conn, timeout: timeout}, nil
	}
}

// idleTimeoutConn pushes the read deadline forward on every read, so only a
// stalled peer times out.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
