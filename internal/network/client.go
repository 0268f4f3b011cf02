// Package network builds HTTP and TLS-fingerprinted clients for the
// scraper. Plain net/http suffices for sites with no bot protection;
// azuretls gives the scraper a Chrome-shaped TLS/HTTP2 fingerprint for
// sites that inspect it.
package network

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Noooste/azuretls-client"
	"golang.org/x/net/proxy"
)

// ClientFactory creates HTTP clients that share a proxy and IP stack
// preference, and azuretls sessions that share only the proxy. One factory is built from config at startup and
// handed to every scraper adapter.
type ClientFactory struct {
	proxyURL string
	ipStack  string // "default", "ipv4", "ipv6"

	testHTTPClient *http.Client // injected in tests
}

// NewClientFactory creates a factory with the given proxy URL (empty for
// none) and IP stack preference.
func NewClientFactory(proxyURL, ipStack string) *ClientFactory {
	if ipStack == "" {
		ipStack = "default"
	}
	return &ClientFactory{proxyURL: proxyURL, ipStack: ipStack}
}

// NewClientFactoryForTest returns a factory whose NewHTTPClient always
// returns the given client.
func NewClientFactoryForTest(client *http.Client) *ClientFactory {
	return &ClientFactory{ipStack: "default", testHTTPClient: client}
}

// NewHTTPClient creates an http.Client tuned with the factory's proxy and IP
// stack preference.
func (f *ClientFactory) NewHTTPClient(timeout time.Duration) *http.Client {
	if f.testHTTPClient != nil {
		return f.testHTTPClient
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: f.newTransport(),
	}
}

// NewAzureSession creates a Chrome-fingerprinted azuretls.Session for sites
// whose bot protection inspects TLS/HTTP2 characteristics rather than just
// headers.
func (f *ClientFactory) NewAzureSession(timeout time.Duration) *azuretls.Session {
	session := azuretls.NewSession()
	session.Browser = azuretls.Chrome
	session.SetTimeout(timeout)
	if f.proxyURL != "" {
		_ = session.SetProxy(f.proxyURL)
	}
	return session
}

func (f *ClientFactory) newTransport() *http.Transport {
	dialFunc := f.makeDialFunc()

	if f.proxyURL == "" {
		return &http.Transport{DialContext: dialFunc}
	}

	parsed, err := url.Parse(f.proxyURL)
	if err != nil {
		slog.Warn("invalid proxy url, dialing direct", "error", err)
		return &http.Transport{DialContext: dialFunc}
	}

	if strings.HasPrefix(parsed.Scheme, "socks") {
		var auth *proxy.Auth
		if parsed.User != nil {
			auth = &proxy.Auth{User: parsed.User.Username()}
			if password, ok := parsed.User.Password(); ok {
				auth.Password = password
			}
		}
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, &ipStackDialer{ipStack: f.ipStack})
		if err != nil {
			slog.Warn("socks5 dialer setup failed, dialing direct", "error", err)
			return &http.Transport{DialContext: dialFunc}
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}

	return &http.Transport{
		Proxy:       http.ProxyURL(parsed),
		DialContext: dialFunc,
	}
}

type ipStackDialer struct {
	ipStack string
}

func (d *ipStackDialer) Dial(network, addr string) (net.Conn, error) {
	return dialWithIPStack(context.Background(), network, addr, d.ipStack)
}

func (f *ClientFactory) makeDialFunc() func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialWithIPStack(ctx, network, addr, f.ipStack)
	}
}

// dialWithIPStack dials with an IP stack preference, falling back to the
// other stack on failure.
func dialWithIPStack(ctx context.Context, network, addr string, ipStack string) (net.Conn, error) {
	switch ipStack {
	case "ipv4":
		return dialWithPreference(ctx, addr, "tcp4", "tcp6")
	case "ipv6":
		return dialWithPreference(ctx, addr, "tcp6", "tcp4")
	default:
		d := &net.Dialer{Timeout: 30 * time.Second}
		return d.DialContext(ctx, network, addr)
	}
}

func dialWithPreference(ctx context.Context, addr, primary, fallback string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, primary, addr)
	if err == nil {
		return conn, nil
	}

	slog.Debug("primary dial failed, trying fallback", "primary", primary, "fallback", fallback, "addr", addr, "error", err)
	d.Timeout = 30 * time.Second
	return d.DialContext(ctx, fallback, addr)
}
