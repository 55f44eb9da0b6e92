package zone

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectTransport rewrites every outbound request's scheme/host to point
// at a local httptest server, leaving the path untouched so baseURL-derived
// requests still land on the right handler.
type redirectTransport struct{ host string }

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	u := *req.URL
	u.Scheme = "http"
	u.Host = rt.host
	clone.URL = &u
	clone.Host = u.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newTestResolver(srv *httptest.Server) *Resolver {
	r := New()
	r.client = srv.Client()
	r.client.Transport = redirectTransport{host: srv.Listener.Addr().String()}
	return r
}

func TestResolve_CachesAfterFirstFetch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"properties":{"name":"San Diego","state":"CA"}}`))
	}))
	defer srv.Close()
	r := newTestResolver(srv)

	name, ok := r.Resolve(context.Background(), "CAC073")
	require.True(t, ok)
	assert.Equal(t, "San Diego, CA", name)

	name2, ok2 := r.Resolve(context.Background(), "CAC073")
	require.True(t, ok2)
	assert.Equal(t, name, name2)
	assert.Equal(t, 1, calls, "second lookup must be served from the process-lifetime cache")
}

func TestResolve_NegativeResultIsCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	r := newTestResolver(srv)

	_, ok := r.Resolve(context.Background(), "CAZ006")
	assert.False(t, ok)
	_, ok = r.Resolve(context.Background(), "CAZ006")
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestKindForUGC(t *testing.T) {
	assert.Equal(t, "county", kindForUGC("CAC073"))
	assert.Equal(t, "forecast", kindForUGC("CAZ006"))
}

func TestResolveAll_JoinsWithSemicolonAndSkipsMisses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zones/county/CAC073":
			w.Write([]byte(`{"properties":{"name":"San Diego","state":"CA"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	r := newTestResolver(srv)

	joined := r.ResolveAll(context.Background(), []string{"CAC073", "CAC999"})
	assert.Equal(t, "San Diego, CA", joined)
}
