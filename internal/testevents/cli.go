package testevents

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/callledger/pkg/logger"
)

// SetupLogging sends log output to stdout and a file. An empty logFile
// gets a timestamped name.
func SetupLogging(logFile string) error {
	if logFile == "" {
		logFile = "test_log_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Call Ledger Webhook Load Test
=============================

Posts synthetic call_analyzed webhooks and checks the outcome of each delivery.

Usage:
  go run ./cmd/test-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -events int
        Number of distinct calls to generate (default 1000)
  -agents string
        Comma-separated routed agent ids (default: the embedded routing table)
  -redeliver float
        Fraction of calls delivered twice (default 0.1)
  -unrouted float
        Fraction of calls from an unrouted agent (default 0.05)
  -skipped float
        Fraction of calls without an end timestamp (default 0.05)
  -workers int
        Number of concurrent senders (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write generated events to this file
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Log every failed delivery
  -help
        Show this help message

Examples:
  go run ./cmd/test-events -events 5000 -workers 16
  go run ./cmd/test-events -agents agent_x,agent_y -redeliver 0.5
`)
}
