package utils

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type VdlHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewVdlHTTPClient(cfg HTTPClientConfig) *VdlHTTPClient {
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	// No overall client timeout: a chunk of a large file can legitimately take hours.
	return &VdlHTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Do applies the configured user agent and default headers. Headers already
// present on the request win over the defaults.
func (d *VdlHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		if d.config.UserAgent != "" {
			req.Header.Set("User-Agent", d.config.UserAgent)
		} else {
			req.Header.Set("User-Agent", ToolUserAgent)
		}
	}
	for k, v := range d.config.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return d.client.Do(req)
}
