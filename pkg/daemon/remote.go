package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/grovetools/pgpulse/internal/daemon/bus"
	"github.com/grovetools/pgpulse/internal/daemon/engine"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemoteClient implements Client over the endpoint's HTTP API, on a Unix
// socket or TCP.
type RemoteClient struct {
	addr       string
	host       string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewRemoteClient creates a client for the endpoint at addr.
func NewRemoteClient(addr string) (*RemoteClient, error) {
	network, address := ParseAddr(addr)
	if address == "" {
		return nil, fmt.Errorf("empty endpoint address %q", addr)
	}

	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	}
	host := address
	if network == "unix" {
		// The connection goes through the socket, not this host.
		host = "unix"
	}

	transport := &http.Transport{
		DialContext:     dial,
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}
	return &RemoteClient{
		addr: addr,
		host: host,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		dialer: &websocket.Dialer{
			NetDialContext:   dial,
			HandshakeTimeout: 5 * time.Second,
		},
	}, nil
}

// Addr returns the endpoint address.
func (c *RemoteClient) Addr() string { return c.addr }

func (c *RemoteClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.addr, err)
	}
	return resp, nil
}

// Status returns the remote session's status.
func (c *RemoteClient) Status(ctx context.Context) (*engine.Status, error) {
	resp, err := c.get(ctx, "/api/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	var st engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &st, nil
}

// Snapshot returns the remote Bus's current Snapshot.
func (c *RemoteClient) Snapshot(ctx context.Context) (snapshot.Snapshot, bool, error) {
	resp, err := c.get(ctx, "/api/snapshot")
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return snapshot.Snapshot{}, false, nil
	case http.StatusOK:
	default:
		return snapshot.Snapshot{}, false, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	var s snapshot.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return snapshot.Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, true, nil
}

// IsRunning returns true if the endpoint answers its health check.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.get(ctx, "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Stream opens the websocket stream of Bus deliveries.
func (c *RemoteClient) Stream(ctx context.Context) (<-chan bus.Delivery, error) {
	conn, resp, err := c.dialer.DialContext(ctx, "ws://"+c.host+"/api/stream", nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream returned status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	ch := make(chan bus.Delivery, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var d bus.Delivery
			if err := json.Unmarshal(data, &d); err != nil {
				continue // Skip malformed data
			}
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
