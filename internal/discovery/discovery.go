// Package discovery locates a running conversation server on the local
// machine when no server URL is configured.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server is a discovered conversation server endpoint.
type Server struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	URL       string `json:"url"`       // base http URL
	EventsURL string `json:"eventsUrl"` // websocket event endpoint
	Latency   int64  `json:"latency"`   // probe round trip in ms
}

// healthCard is the payload served by a conversation server's /health.
type healthCard struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Events  string `json:"events"` // websocket path, e.g. "/events"
}

// Config tunes the probe sweep.
type Config struct {
	Ports   []int
	Hosts   []string
	Timeout time.Duration
}

// DefaultConfig probes the usual local ports.
func DefaultConfig() Config {
	return Config{
		Ports:   []int{8080, 8081, 8082, 9080},
		Hosts:   []string{"localhost"},
		Timeout: 2 * time.Second,
	}
}

// Prober sweeps candidate endpoints for a conversation server.
type Prober struct {
	cfg    Config
	logger zerolog.Logger
	client *http.Client
}

// NewProber creates a prober.
func NewProber(cfg Config, logger zerolog.Logger) *Prober {
	if len(cfg.Ports) == 0 {
		cfg = DefaultConfig()
	}
	return &Prober{
		cfg:    cfg,
		logger: logger.With().Str("component", "discovery").Logger(),
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Discover probes every candidate endpoint concurrently and returns the
// reachable servers, fastest first.
func (p *Prober) Discover(ctx context.Context) []*Server {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var found []*Server

	for _, host := range p.cfg.Hosts {
		for _, port := range p.cfg.Ports {
			base := fmt.Sprintf("http://%s:%d", host, port)
			wg.Add(1)
			go func(base string) {
				defer wg.Done()
				if srv := p.probe(ctx, base); srv != nil {
					mu.Lock()
					found = append(found, srv)
					mu.Unlock()
				}
			}(base)
		}
	}
	wg.Wait()

	// Fastest first.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].Latency < found[j-1].Latency; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	p.logger.Info().Int("servers", len(found)).Msg("Discovery sweep complete")
	return found
}

// First returns the fastest reachable server, or an error when none
// responds.
func (p *Prober) First(ctx context.Context) (*Server, error) {
	found := p.Discover(ctx)
	if len(found) == 0 {
		return nil, fmt.Errorf("no conversation server found on ports %v", p.cfg.Ports)
	}
	return found[0], nil
}

// probe checks one base URL for a conversation server health card.
func (p *Prober) probe(ctx context.Context, base string) *Server {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return nil
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var card healthCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil
	}
	if card.Events == "" {
		// Something answered, but it is not an event server.
		return nil
	}

	srv := &Server{
		Name:      card.Service,
		Version:   card.Version,
		URL:       base,
		EventsURL: "ws" + base[len("http"):] + card.Events,
		Latency:   time.Since(start).Milliseconds(),
	}
	p.logger.Debug().Str("url", srv.URL).Int64("latency_ms", srv.Latency).Msg("Server found")
	return srv
}
