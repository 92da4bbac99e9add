package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/omni-lock-gateway/internal/gateway"
)

// defaultTimeout bounds a single delivery attempt.
const defaultTimeout = 5 * time.Second

// Config holds webhook delivery configuration.
type Config struct {
	// Endpoint is the URL events are posted to. Required.
	Endpoint string

	// AuthHeader, when non-empty, is sent verbatim as the Authorization
	// header.
	AuthHeader string

	// Timeout bounds a single delivery attempt. Default: 5 seconds.
	Timeout time.Duration
}

// payload is the JSON body posted to the endpoint.
type payload struct {
	EventID        string   `json:"event_id"`
	DeviceID       string   `json:"device_id"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`
	Lat            string   `json:"lat,omitempty"`
	Lng            string   `json:"lng,omitempty"`
}

// Client posts device events to the configured endpoint.
// It implements the gateway's event publisher.
type Client struct {
	cfg  Config
	http *http.Client

	onError   func(error)
	onErrorMu sync.RWMutex

	wg sync.WaitGroup
}

var _ gateway.Publisher = (*Client)(nil)

// New creates a webhook client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetOnError sets the callback invoked when a delivery fails.
func (c *Client) SetOnError(callback func(error)) {
	c.onErrorMu.Lock()
	c.onError = callback
	c.onErrorMu.Unlock()
}

// Publish posts one event. It returns immediately; delivery happens on a
// goroutine and failures go to the error callback.
func (c *Client) Publish(e gateway.Event) {
	body := payload{
		EventID:        uuid.NewString(),
		DeviceID:       e.IMEI,
		BatteryVoltage: e.BatteryVoltage,
		Lat:            e.Lat,
		Lng:            e.Lng,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.deliver(body); err != nil {
			c.reportError(fmt.Errorf("webhook: deliver %s event for %s: %w", e.Kind, e.IMEI, err))
		}
	}()
}

// deliver performs one POST attempt.
func (c *Client) deliver(body payload) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthHeader != "" {
		req.Header.Set("Authorization", c.cfg.AuthHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}

func (c *Client) reportError(err error) {
	c.onErrorMu.RLock()
	callback := c.onError
	c.onErrorMu.RUnlock()

	if callback != nil {
		callback(err)
	}
}

// Close waits for in-flight deliveries to finish.
func (c *Client) Close() error {
	c.wg.Wait()
	return nil
}
