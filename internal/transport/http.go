package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"spectrald/internal/model"
)

// Default fixture endpoint timings.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// HTTPClient talks to fixtures over their local HTTP interface.
type HTTPClient struct {
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewHTTPClient creates a fixture transport with the given request timeout
// and status poll interval. Zero values select the defaults.
func NewHTTPClient(timeout, pollInterval time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if pollInterval == 0 {
		pollInterval = DefaultPollInterval
	}
	return &HTTPClient{
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
	}
}

func (c *HTTPClient) url(d *model.Device, path string) string {
	return fmt.Sprintf("http://%s/api/%s", d.Address, path)
}

func (c *HTTPClient) do(ctx context.Context, d *model.Device, op, method, path string, payload any) (*http.Response, error) {
	if d.Address == "" {
		return nil, NewError(d.ID, op, fmt.Errorf("device has no network address"))
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, NewError(d.ID, op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(d, path), body)
	if err != nil {
		return nil, NewError(d.ID, op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewError(d.ID, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, NewError(d.ID, op, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}
	return resp, nil
}

// TestConnection probes the fixture's status endpoint.
func (c *HTTPClient) TestConnection(ctx context.Context, d *model.Device) error {
	resp, err := c.do(ctx, d, "test connection", http.MethodGet, "status", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// GetStatus fetches and decodes the fixture status document.
func (c *HTTPClient) GetStatus(ctx context.Context, d *model.Device) (*Status, error) {
	resp, err := c.do(ctx, d, "get status", http.MethodGet, "status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, NewError(d.ID, "get status", err)
	}
	st.Online = true
	if st.ChannelCount > model.MaxChannels {
		st.ChannelCount = model.MaxChannels
	}
	return &st, nil
}

// SetPower sends an explicit power command.
func (c *HTTPClient) SetPower(ctx context.Context, d *model.Device, on bool) error {
	resp, err := c.do(ctx, d, "set power", http.MethodPost, "power", map[string]bool{"on": on})
	if err != nil {
		return err
	}
	resp.Body.Close()
	log.Debug().Str("device", d.ID).Bool("on", on).Msg("Power command sent")
	return nil
}

// SetChannel sets one channel's duty cycle.
func (c *HTTPClient) SetChannel(ctx context.Context, d *model.Device, index, pwm int) error {
	path := fmt.Sprintf("channels/%d", index)
	resp, err := c.do(ctx, d, "set channel", http.MethodPost, path, map[string]int{"value": pwm})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SetChannels sets several channels in a single request.
func (c *HTTPClient) SetChannels(ctx context.Context, d *model.Device, values map[int]int) error {
	resp, err := c.do(ctx, d, "set channels", http.MethodPost, "channels", values)
	if err != nil {
		return err
	}
	resp.Body.Close()
	log.Debug().Str("device", d.ID).Int("channels", len(values)).Msg("Batch channel command sent")
	return nil
}

// FetchProfileFile downloads the profile document the fixture serves.
func (c *HTTPClient) FetchProfileFile(ctx context.Context, d *model.Device) ([]byte, error) {
	resp, err := c.do(ctx, d, "fetch profile", http.MethodGet, "profile", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(d.ID, "fetch profile", err)
	}
	return data, nil
}

// StreamStatus polls the fixture on the configured interval until ctx is
// cancelled. A failed poll yields an offline snapshot; the next poll may
// bring the device back.
func (c *HTTPClient) StreamStatus(ctx context.Context, d *model.Device) (<-chan Status, error) {
	out := make(chan Status, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			st, err := c.GetStatus(ctx, d)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Debug().Err(err).Str("device", d.ID).Msg("Status poll failed")
				st = &Status{Online: false}
			}

			select {
			case out <- *st:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
