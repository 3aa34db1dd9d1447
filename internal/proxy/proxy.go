// SPDX-License-Identifier: MIT

// Package proxy implements C9, the /videoplayback stream proxy: either a
// redirect to the origin CDN, or a full-duplex, backpressure-aware pipe
// through this gateway when local streaming is requested.
package proxy

import (
	"io"
	"net/http"
	"net/url"

	"github.com/marmadilemanteater/yaytapi-go/internal/log"
)

// hopByHopHeaders are stripped from the upstream response before it is
// relayed to the client, per spec.md §4.9.
var hopByHopHeaders = []string{"Referrer", "Access-Control-Allow-Origin", "Connection"}

// Handler serves /videoplayback.
type Handler struct {
	client               *http.Client
	enableLocalStreaming bool
}

// New creates a Handler. enableLocalStreaming mirrors
// settings.EnableLocalStreaming: when false, local=true requests are
// rejected with 403 rather than proxied.
func New(enableLocalStreaming bool) *Handler {
	return &Handler{client: &http.Client{}, enableLocalStreaming: enableLocalStreaming}
}

// ServeVideoPlayback implements spec.md §4.9. host is the urldecoded
// origin host recovered from the ?host= query parameter, local is the
// parsed ?local= query parameter, and requestURI is the original request's
// path+query (used both to build the redirect Location and the proxied
// origin request).
func (h *Handler) ServeVideoPlayback(w http.ResponseWriter, r *http.Request, host string, local bool, requestURI string) {
	l := log.WithComponent("proxy")

	if !local {
		w.Header().Set("Location", "https://"+host+requestURI)
		w.WriteHeader(http.StatusFound)
		return
	}
	if !h.enableLocalStreaming {
		http.Error(w, "local streaming is disabled", http.StatusForbidden)
		return
	}

	target := &url.URL{Scheme: "https", Host: host, Path: r.URL.Path, RawQuery: stripGatewayParams(r.URL.Query())}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		l.Warn().Err(err).Str("host", host).Msg("failed to build upstream request")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	for k, vv := range r.Header {
		for _, v := range vv {
			upstreamReq.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		l.Warn().Err(err).Str("host", host).Msg("upstream videoplayback request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		if isHopByHop(k) || k == "Content-Length" {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}

	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
		l.Debug().Err(err).Str("host", host).Msg("client disconnected mid-stream")
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(h) == http.CanonicalHeaderKey(header) {
			return true
		}
	}
	return false
}

// stripGatewayParams removes the gateway-only host/local query
// parameters before forwarding the request upstream.
func stripGatewayParams(q url.Values) string {
	q.Del("host")
	q.Del("local")
	return q.Encode()
}
