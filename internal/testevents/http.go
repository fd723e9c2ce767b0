package testevents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/callledger/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

type delivery struct {
	code    int
	outcome string
	err     error
}

// submitEvents posts events to /webhook with a pool of senders. Redeliveries
// are sent only after every original has been acknowledged.
func submitEvents(ctx context.Context, config *Config, events []Event, stats *Stats) error {
	logger.Get().Info(ctx, "submitting events",
		logger.Int("count", len(events)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/webhook"

	var originals, redeliveries []Event
	for _, ev := range events {
		if ev.Kind == KindRedelivery {
			redeliveries = append(redeliveries, ev)
		} else {
			originals = append(originals, ev)
		}
	}

	var mu sync.Mutex
	record := func(d delivery) {
		mu.Lock()
		defer mu.Unlock()
		stats.EventsSubmitted++
		if d.err != nil {
			stats.EventsFailed++
			return
		}
		stats.StatusCodes[d.code]++
		stats.Outcomes[d.outcome]++
	}

	for _, batch := range [][]Event{originals, redeliveries} {
		if err := sendAll(ctx, client, url, config, batch, record); err != nil {
			return err
		}
	}

	logger.Get().Info(ctx, "event submission completed",
		logger.Int("submitted", stats.EventsSubmitted),
		logger.Int("failed", stats.EventsFailed),
		logger.Any("outcomes", stats.Outcomes))
	return nil
}

func sendAll(ctx context.Context, client *HTTPClient, url string, config *Config, events []Event, record func(delivery)) error {
	workers := max(1, min(config.Workers, len(events)))
	ch := make(chan Event, workers*2)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				d := submitSingleEvent(ctx, client, url, ev)
				if d.err != nil && config.Verbose {
					logger.Get().Warn(ctx, "delivery failed",
						logger.String("call_id", ev.Call.CallID),
						logger.Error(d.err))
				}
				record(d)
			}
		}()
	}

	for _, ev := range events {
		select {
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return fmt.Errorf("context cancelled during submission: %w", ctx.Err())
		case ch <- ev:
		}
	}
	close(ch)
	wg.Wait()
	return nil
}

// submitSingleEvent posts one event and reports the service's outcome label.
func submitSingleEvent(ctx context.Context, client *HTTPClient, url string, ev Event) delivery {
	resp, err := client.Post(ctx, url, ev)
	if err != nil {
		return delivery{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery{err: err}
	}
	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return delivery{err: fmt.Errorf("status %d: undecodable body: %w", resp.StatusCode, err)}
	}
	return delivery{code: resp.StatusCode, outcome: status.Status}
}
