package devserver

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// newReverseProxy builds a Vite-equivalent reverse proxy to target:
// changeOrigin (Host header rewritten to the target) and insecure TLS
// (dev backends commonly run self-signed certs), the same defaults
// please_js/dev.parseProxies applies.
func newReverseProxy(target string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	originalDirector := rp.Director
	rp.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = u.Host
	}
	rp.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	return rp, nil
}
