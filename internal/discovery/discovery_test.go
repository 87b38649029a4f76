package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverPort(t *testing.T, s *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestProber_FindsEventServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"service":"voxline","version":"1.2.0","events":"/events"}`))
	}))
	defer ts.Close()

	p := NewProber(Config{
		Ports:   []int{serverPort(t, ts)},
		Hosts:   []string{"127.0.0.1"},
		Timeout: time.Second,
	}, zerolog.Nop())

	srv, err := p.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "voxline", srv.Name)
	assert.Equal(t, "ws://127.0.0.1:"+strconv.Itoa(serverPort(t, ts))+"/events", srv.EventsURL)
}

func TestProber_IgnoresNonEventServers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`)) // healthy, but no events endpoint
	}))
	defer ts.Close()

	p := NewProber(Config{
		Ports:   []int{serverPort(t, ts)},
		Hosts:   []string{"127.0.0.1"},
		Timeout: time.Second,
	}, zerolog.Nop())

	_, err := p.First(context.Background())
	assert.Error(t, err)
}

func TestProber_NothingListening(t *testing.T) {
	p := NewProber(Config{
		Ports:   []int{1}, // nothing listens on port 1
		Hosts:   []string{"127.0.0.1"},
		Timeout: 200 * time.Millisecond,
	}, zerolog.Nop())

	found := p.Discover(context.Background())
	assert.Empty(t, found)
}
