package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storepulse/api/channel"
	"storepulse/api/models"
)

// QueueFunc mirrors the global push-style beacon: queue("event", type, data).
type QueueFunc func(kind string, eventType models.EventType, data models.Payload)

// CallbackSink hands each envelope to an in-process queue function.
type CallbackSink struct {
	Fn QueueFunc
}

func (s CallbackSink) Send(_ context.Context, env models.Envelope) error {
	if s.Fn == nil {
		return nil
	}
	data := models.Payload{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("failed to decode event data: %w", err)
		}
	}
	s.Fn("event", env.Event, data)
	return nil
}

// HTTPSink POSTs each envelope as JSON to Endpoint.
type HTTPSink struct {
	Endpoint string
	Client   *http.Client
	// KeepAlive detaches sends from the caller's context so an in-flight
	// request survives the page being torn down.
	KeepAlive bool
	Timeout   time.Duration
}

func NewHTTPSink(endpoint string) *HTTPSink {
	return &HTTPSink{
		Endpoint:  endpoint,
		Client:    &http.Client{},
		KeepAlive: true,
		Timeout:   10 * time.Second,
	}
}

func (s *HTTPSink) Send(ctx context.Context, env models.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if s.KeepAlive {
		ctx = context.WithoutCancel(ctx)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event to %s: %w", s.Endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingestion endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// ChannelSink publishes envelopes to an in-process EventChannel.
type ChannelSink struct {
	Channel channel.Channel
	Now     func() time.Time
}

func (s ChannelSink) Send(_ context.Context, env models.Envelope) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	s.Channel.Publish(env.TrackingEvent(now()))
	return nil
}
