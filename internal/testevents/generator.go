package testevents

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/callledger/pkg/logger"
)

const (
	randomFloatDivisor = 1_000_000
	unroutedAgentID    = "agent_load_test_unrouted"
)

var (
	dispositions = []string{"user_hangup", "agent_hangup", "voicemail_reached", "dial_no_answer"}
	answers      = []string{"Yes", "No", "Maybe"}
)

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomIndex(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// generateEvents builds the delivery list. Redeliveries repeat an earlier
// routed call verbatim and are appended after the originals.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	if len(config.AgentIDs) == 0 {
		return nil, fmt.Errorf("no agent ids configured")
	}
	logger.Get().Info(ctx, "generating call events", logger.Int("numEvents", config.NumEvents))

	now := time.Now()
	events := make([]Event, 0, config.NumEvents)
	var redeliveries []Event
	for i := 0; i < config.NumEvents; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}

		ev := generateSingleEvent(config.AgentIDs[i%len(config.AgentIDs)], now)
		r := getRandomFloat()
		switch {
		case r < config.Unrouted:
			ev.Kind = KindUnrouted
			ev.Call.AgentID = unroutedAgentID
		case r < config.Unrouted+config.Skipped:
			ev.Kind = KindSkipped
			ev.Call.EndTimestamp = nil
		case r < config.Unrouted+config.Skipped+config.Redeliver:
			dup := ev
			dup.Kind = KindRedelivery
			redeliveries = append(redeliveries, dup)
		}
		events = append(events, ev)
	}
	events = append(events, redeliveries...)

	for _, ev := range events {
		stats.Expected[ev.Kind]++
	}
	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully",
		logger.Int("count", len(events)),
		logger.Int("redeliveries", len(redeliveries)))
	return events, nil
}

// generateSingleEvent creates one routed call_analyzed delivery.
func generateSingleEvent(agentID string, now time.Time) Event {
	end := now.Add(-time.Duration(randomIndex(3600)) * time.Second).UnixMilli()
	phone := fmt.Sprintf("1212%07d", randomIndex(10_000_000))

	return Event{
		Kind:  KindRouted,
		Event: "call_analyzed",
		Call: CallBody{
			AgentID:             agentID,
			CallID:              "call_" + uuid.NewString(),
			ToNumber:            "+" + phone,
			FromNumber:          "+18005550100",
			EndTimestamp:        &end,
			DisconnectionReason: dispositions[randomIndex(len(dispositions))],
			Analysis: map[string]any{
				"custom_analysis_data": map[string]any{
					"_interested":   answers[randomIndex(len(answers))],
					"_call_summary": "synthetic load test call",
				},
			},
			Cost: map[string]any{"total_duration_seconds": 15 + randomIndex(300)},
			DynamicVariables: map[string]any{
				"first_name":       "Load",
				"last_name":        "Test",
				"firestore_doc_id": "loadtest-" + uuid.NewString(),
			},
		},
	}
}
