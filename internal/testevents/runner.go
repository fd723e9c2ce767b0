package testevents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/callledger/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrVerification reports outcome counts that disagree with what was sent.
var ErrVerification = errors.New("outcome verification failed")

// Run executes the complete load test.
func Run(ctx context.Context, config *Config) error {
	stats := newStats()

	logger.Get().Info(ctx, "starting call ledger load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("agents", config.AgentIDs))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	events, err := generateEvents(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}

	if err := submitEvents(ctx, config, events, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}

	if config.OutputFile != "" {
		if err := saveEventsToFile(ctx, config.OutputFile, events); err != nil {
			logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if err := verifyOutcomes(stats); err != nil {
		return err
	}
	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// verifyOutcomes compares what the service reported with what was sent.
// Ledger write failures count as delivered since the service acknowledges them.
func verifyOutcomes(stats *Stats) error {
	var errs []error
	if stats.EventsFailed > 0 {
		errs = append(errs, fmt.Errorf("%d deliveries failed in transport", stats.EventsFailed))
	}
	if n := stats.Outcomes["handler_error"]; n > 0 {
		errs = append(errs, fmt.Errorf("%d handler failures", n))
	}
	if n := stats.Outcomes["client_error"]; n > 0 {
		errs = append(errs, fmt.Errorf("%d payloads rejected", n))
	}
	if got, want := stats.Outcomes["unrouted"], stats.Expected[KindUnrouted]; got != want {
		errs = append(errs, fmt.Errorf("unrouted: got %d, want %d", got, want))
	}
	if got, want := stats.Outcomes["skipped"], stats.Expected[KindSkipped]; got != want {
		errs = append(errs, fmt.Errorf("skipped: got %d, want %d", got, want))
	}
	delivered := stats.Outcomes["ok"] + stats.Outcomes["ledger_error"]
	if want := stats.Expected[KindRouted] + stats.Expected[KindRedelivery]; delivered != want {
		errs = append(errs, fmt.Errorf("routed: got %d, want %d", delivered, want))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return nil
}

// saveEventsToFile writes the generated deliveries as a JSON array.
func saveEventsToFile(ctx context.Context, filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Any("expected", stats.Expected),
		logger.Any("outcomes", stats.Outcomes),
		logger.Any("statusCodes", stats.StatusCodes),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("eventsPerSecond", perSecond))
}
