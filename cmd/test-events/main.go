package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/okian/callledger/internal/domain/routing"
	"github.com/okian/callledger/internal/testevents"
)

// Default configuration constants.
const (
	defaultNumEvents   = 1000
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		numEvents  = flag.Int("events", defaultNumEvents, "Number of distinct calls to generate")
		agents     = flag.String("agents", "", "Comma-separated routed agent ids (default: embedded routing table)")
		redeliver  = flag.Float64("redeliver", 0.1, "Fraction of calls delivered twice")
		unrouted   = flag.Float64("unrouted", 0.05, "Fraction of calls from an unrouted agent")
		skipped    = flag.Float64("skipped", 0.05, "Fraction of calls without an end timestamp")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent senders")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write generated events to this file")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	agentIDs, err := agentList(*agents)
	if err != nil {
		os.Stderr.WriteString("Failed to resolve agents: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:    strings.TrimRight(*baseURL, "/"),
		NumEvents:  *numEvents,
		Workers:    *workers,
		Timeout:    *timeout,
		AgentIDs:   agentIDs,
		Redeliver:  *redeliver,
		Unrouted:   *unrouted,
		Skipped:    *skipped,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}

// agentList splits the flag value or falls back to the embedded routes.
func agentList(flagValue string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(flagValue, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}
	table, err := routing.Default(routing.DefaultRegistry(), routing.Defaults{})
	if err != nil {
		return nil, err
	}
	return table.ProducerIDs(), nil
}
