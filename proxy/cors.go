package proxy

import (
	"errors"
	"net/http"
	"strings"
)

var (
	errMissingTarget = errors.New("proxy: missing target-url")
	errInvalidTarget = errors.New("proxy: target-url is not an absolute http(s) URL")
)

// allowedRequestHeaders are the headers a browser may send cross-origin.
var allowedRequestHeaders = strings.Join([]string{
	"Content-Type",
	"Authorization",
	HeaderSessionID,
	HeaderWalletType,
	HeaderWalletAddress,
	HeaderWalletProvider,
}, ", ")

// applyCORS attaches CORS headers scoped to the origin allow-list.
// Credentials are allowed only when the origin was positively matched;
// unmatched origins get a wildcard with no credentials, never both.
func (p *Relay) applyCORS(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", allowedRequestHeaders)
	h.Set("Access-Control-Expose-Headers", HeaderSessionID)

	origin := r.Header.Get("Origin")
	if origin != "" && p.originAllowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		return
	}
	h.Set("Access-Control-Allow-Origin", "*")
}

// originAllowed matches the explicit production allow-list, plus localhost
// origins in development.
func (p *Relay) originAllowed(origin string) bool {
	for _, allowed := range p.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	if p.DevMode {
		return strings.HasPrefix(origin, "http://localhost:") ||
			origin == "http://localhost" ||
			strings.HasPrefix(origin, "http://127.0.0.1:") ||
			origin == "http://127.0.0.1"
	}
	return false
}
