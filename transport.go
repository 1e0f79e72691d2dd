package mycache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Server exposes a PeerPool's handleGet over the wire protocol of
// spec.md §4.11: a single POST route, form-encoded request, octet-
// stream response. The server always closes the connection after each
// response (no keep-alive): every response carries Connection: close.
type Server struct {
	pool *PeerPool
}

// NewServer wraps pool as an http.Handler.
func NewServer(pool *PeerPool) *Server { return &Server{pool: pool} }

const getPath = "/Get"

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	if r.URL.Path != getPath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form body", http.StatusBadRequest)
		return
	}
	groupName := r.FormValue("groupName")
	key := r.FormValue("key")
	if groupName == "" || key == "" {
		http.Error(w, "groupName and key are required", http.StatusBadRequest)
		return
	}

	cc := &CacheControl{}
	var payload []byte
	err := s.pool.handleGet(r.Context(), groupName, key, AllocatingByteSliceSink(&payload), cc)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	if cc.NoStore {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrServerBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpRemoteClient is the un-wrapped HTTP transport for a single remote
// peer; PeerPool wraps it in a circuit breaker before handing it to a
// PeerPicker.
type httpRemoteClient struct {
	endpoint PeerEndpoint
	http     *http.Client
}

func (c *httpRemoteClient) IsLocal() bool          { return false }
func (c *httpRemoteClient) Endpoint() PeerEndpoint { return c.endpoint }

// Get sends the request and maps the response status back to a typed
// error kind (spec.md §4.11's client-side mapping).
func (c *httpRemoteClient) Get(ctx context.Context, groupName, key string, dest Sink, cc *CacheControl) error {
	form := url.Values{"groupName": {groupName}, "key": {key}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s%s", c.endpoint, getPath), strings.NewReader(form.Encode()))
	if err != nil {
		return wrapf(ErrConnectFailure, "%v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return wrapf(ErrCancelled, "%v", ctx.Err())
		}
		return wrapf(ErrConnectFailure, "%v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrGroupNotFound
	case http.StatusServiceUnavailable:
		return ErrServerBusy
	case http.StatusBadRequest:
		return wrapf(ErrInternal, "malformed request")
	default:
		return wrapf(ErrInternal, "unexpected status %d", resp.StatusCode)
	}

	if resp.Header.Get("Cache-Control") == "no-store" {
		cc.NoStore = true
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return wrapf(ErrCancelled, "%v", ctx.Err())
		}
		return wrapf(ErrConnectFailure, "%v", err)
	}
	return setSinkView(dest, ByteView{b: b})
}
