// Package proxy relays MCP (Model Context Protocol) JSON-RPC and streaming
// traffic between a same-origin browser caller and an arbitrary cross-origin
// upstream tool server. The relay is stateless: per-request state lives
// entirely in headers and the buffered request body, so concurrent requests
// share nothing and need no locking.
package proxy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header and query-parameter names used by the relay.
const (
	HeaderSessionID      = "Mcp-Session-Id"
	HeaderWalletType     = "X-Wallet-Type"
	HeaderWalletAddress  = "X-Wallet-Address"
	HeaderWalletProvider = "X-Wallet-Provider"

	QueryTargetURL = "target-url"

	defaultAccept      = "application/json, text/event-stream"
	defaultContentType = "application/json"

	methodInitialize = "initialize"
)

// hopByHopHeaders are never forwarded upstream. Content-Length and
// Transfer-Encoding are recomputed by the transport; Content-Encoding is
// dropped on the request side because the buffered body is forwarded as-is.
var hopByHopHeaders = map[string]bool{
	"Host":              true,
	"Connection":        true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
}

// Session is the authenticated caller identity resolved from a request.
type Session struct {
	// Subject identifies the authenticated user.
	Subject string

	// WalletAddress is the user's linked wallet, when known.
	WalletAddress string
}

// SessionProvider resolves the caller's authenticated session from request
// headers (cookie-based in the gateway). Returning an error or a nil session
// rejects the request with 401.
type SessionProvider interface {
	SessionFromRequest(r *http.Request) (*Session, error)
}

// Relay is the MCP reverse-proxy handler.
type Relay struct {
	// Sessions authenticates inbound requests. Required.
	Sessions SessionProvider

	// Upstream is the HTTP client used to reach tool servers. If nil,
	// http.DefaultClient is used. Streaming responses require a client
	// without a response-read timeout.
	Upstream *http.Client

	// AllowedOrigins is the production CORS origin allow-list.
	AllowedOrigins []string

	// DevMode additionally allows localhost origins.
	DevMode bool

	// Logger receives per-request structured logs.
	Logger zerolog.Logger
}

// ServeHTTP implements the per-request relay state machine: authenticate,
// resolve target, classify method, apply session-id policy, translate
// headers, forward, and stream the response back.
func (p *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.applyCORS(w, r)

	// Preflight is answered directly, never forwarded.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	session, err := p.Sessions.SessionFromRequest(r)
	if err != nil || session == nil {
		p.Logger.Debug().Err(err).Str("path", r.URL.Path).Msg("relay: unauthenticated request")
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	target, err := ResolveTargetURL(r.URL.Query().Get(QueryTargetURL))
	if err != nil {
		p.Logger.Debug().Err(err).Msg("relay: invalid target-url")
		writeJSONError(w, http.StatusBadRequest, "Missing or invalid target-url")
		return
	}

	// The body is read once and reused; it must not be consumed twice.
	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Unreadable request body")
			return
		}
	}

	isInitialize := r.Method == http.MethodPost && peekJSONRPCMethod(body) == methodInitialize

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid upstream request")
		return
	}

	p.translateHeaders(r, outReq, isInitialize)

	logEvent := p.Logger.Debug().
		Str("method", r.Method).
		Str("target", target.Host).
		Str("subject", session.Subject).
		Bool("initialize", isInitialize)

	resp, err := p.upstreamClient().Do(outReq)
	if err != nil {
		logEvent.Err(err).Msg("relay: upstream unreachable")
		writeJSONError(w, http.StatusBadGateway, "Upstream unreachable")
		return
	}
	defer resp.Body.Close()

	logEvent.Int("status", resp.StatusCode).Msg("relay: forwarded")

	p.relayResponse(w, resp)
}

// translateHeaders copies inbound headers minus hop-by-hop ones, applies the
// session-id policy, and defaults Accept and Content-Type.
func (p *Relay) translateHeaders(in *http.Request, out *http.Request, isInitialize bool) {
	for name, values := range in.Header {
		if hopByHopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			out.Header.Add(name, v)
		}
	}

	// Cookies ride along for upstreams sharing the gateway's auth domain.
	if cookie := in.Header.Get("Cookie"); cookie != "" {
		out.Header.Set("Cookie", cookie)
	}

	// The upstream is the authority for assigning a session on initialize: a
	// client-supplied or synthesized id must never cross that boundary.
	if isInitialize {
		out.Header.Del(HeaderSessionID)
	} else if out.Header.Get(HeaderSessionID) == "" {
		out.Header.Set(HeaderSessionID, uuid.NewString())
	}

	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", defaultAccept)
	}
	if in.Method == http.MethodPost && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", defaultContentType)
	}
}

// relayResponse streams the upstream response back unmodified, propagating
// Content-Encoding (no re-decode/re-encode) and the upstream session id.
func (p *Relay) relayResponse(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		switch http.CanonicalHeaderKey(name) {
		case "Connection", "Transfer-Encoding", "Content-Length":
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Relay) upstreamClient() *http.Client {
	if p.Upstream != nil {
		return p.Upstream
	}
	return http.DefaultClient
}

// ResolveTargetURL decodes the target-url query parameter: base64 of an
// absolute URL, falling back to treating the raw value as a URL when base64
// decoding does not yield one.
func ResolveTargetURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errMissingTarget
	}

	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if u, err := parseAbsoluteURL(string(decoded)); err == nil {
			return u, nil
		}
	}
	return parseAbsoluteURL(raw)
}

func parseAbsoluteURL(s string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errInvalidTarget
	}
	if u.Host == "" {
		return nil, errInvalidTarget
	}
	return u, nil
}

// peekJSONRPCMethod extracts the JSON-RPC method field from a request body,
// returning "" when the body is not a JSON-RPC message.
func peekJSONRPCMethod(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Method
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
