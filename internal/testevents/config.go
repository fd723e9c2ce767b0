package testevents

import "time"

// Config holds configuration for the webhook load test.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumEvents  int           // Number of distinct calls to generate
	Workers    int           // Number of concurrent senders
	Timeout    time.Duration // HTTP request timeout
	AgentIDs   []string      // Routed producer ids to spread calls across
	Redeliver  float64       // Fraction of calls delivered twice
	Unrouted   float64       // Fraction of calls from an unrouted producer
	Skipped    float64       // Fraction of calls without an end timestamp
	OutputFile string        // Output file for generated events
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// Kind is what the generator intended an event to exercise.
type Kind string

// Event kinds.
const (
	KindRouted     Kind = "routed"
	KindRedelivery Kind = "redelivery"
	KindUnrouted   Kind = "unrouted"
	KindSkipped    Kind = "skipped"
)

// Event is one webhook delivery.
type Event struct {
	Kind  Kind     `json:"-"`
	Event string   `json:"event"`
	Call  CallBody `json:"call"`
}

// CallBody is the call object of a call_analyzed webhook.
type CallBody struct {
	AgentID             string         `json:"agent_id"`
	CallID              string         `json:"call_id"`
	ToNumber            string         `json:"to_number"`
	FromNumber          string         `json:"from_number"`
	EndTimestamp        *int64         `json:"end_timestamp,omitempty"`
	DisconnectionReason string         `json:"disconnection_reason"`
	Analysis            map[string]any `json:"call_analysis"`
	Cost                map[string]any `json:"call_cost"`
	DynamicVariables    map[string]any `json:"retell_llm_dynamic_variables"`
}

// StatusResponse is the webhook response body.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Stats holds test statistics.
type Stats struct {
	EventsGenerated int
	EventsSubmitted int
	EventsFailed    int
	Expected        map[Kind]int
	Outcomes        map[string]int
	StatusCodes     map[int]int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

func newStats() *Stats {
	return &Stats{
		Expected:    make(map[Kind]int),
		Outcomes:    make(map[string]int),
		StatusCodes: make(map[int]int),
		StartTime:   time.Now(),
	}
}
