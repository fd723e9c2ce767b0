// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// EventCallAnalyzed is the only event kind that produces ledger rows.
const EventCallAnalyzed = "call_analyzed"

// Sentinel kinds for payload decoding.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrMissingCall    = errors.New("payload has no call object")
)

// Event is a webhook delivery as received from the voice platform.
// Only the kind is decoded up front; the call object, under "data" or
// from older producers "call", is decoded by Call.
type Event struct {
	Kind string

	// Raw keeps the original body for the analytics sink.
	Raw []byte

	data json.RawMessage
	alt  json.RawMessage
}

type envelope struct {
	Event json.RawMessage `json:"event"`
	Data  json.RawMessage `json:"data"`
	Call  json.RawMessage `json:"call"`
}

// Call carries the fields of one completed call that the service reads.
type Call struct {
	AgentID             string
	CallID              string
	ToNumber            string
	FromNumber          string
	EndTimestamp        any
	DisconnectionReason string
	RecordingURL        string
	Transcript          any
	Analysis            *CallAnalysis
	Cost                *CallCost
	DynamicVariables    map[string]any
}

// CallAnalysis holds the post-call extraction produced by the agent.
type CallAnalysis struct {
	CustomAnalysisData map[string]any
}

// CallCost holds billing data; only the duration is used.
type CallCost struct {
	TotalDurationSeconds any
}

// wireCall is the lenient decoding target: scalars accept any JSON scalar
// and nested objects of the wrong shape are dropped.
type wireCall struct {
	AgentID             scalar `json:"agent_id"`
	CallID              scalar `json:"call_id"`
	ToNumber            scalar `json:"to_number"`
	FromNumber          scalar `json:"from_number"`
	EndTimestamp        any    `json:"end_timestamp"`
	DisconnectionReason scalar `json:"disconnection_reason"`
	RecordingURL        scalar `json:"recording_url"`
	Transcript          any    `json:"transcript"`
	Analysis            any    `json:"call_analysis"`
	Cost                any    `json:"call_cost"`
	DynamicVariables    any    `json:"retell_llm_dynamic_variables"`
}

// scalar decodes a string, number or bool as its text. Null, objects and
// arrays decode as "". Number literals are kept exactly as sent.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = scalar(str)
	case '{', '[', 'n':
		*s = ""
	default:
		*s = scalar(b)
	}
	return nil
}

// ParseEvent decodes the webhook envelope. It fails only when the body is
// not a JSON object; a missing or non-string event kind decodes as "".
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	e := &Event{Raw: body, data: env.Data, alt: env.Call}
	if len(env.Event) > 0 {
		var kind string
		if err := json.Unmarshal(env.Event, &kind); err == nil {
			e.Kind = kind
		}
	}
	return e, nil
}

// IsCallAnalyzed reports whether the event should be processed.
func (e *Event) IsCallAnalyzed() bool {
	return e.Kind == EventCallAnalyzed
}

// Call decodes the call object, preferring "data" over "call". An empty
// "data" value falls through to "call". Numbers are kept as json.Number so
// timestamps and durations survive without float rounding.
func (e *Event) Call() (*Call, error) {
	raw := e.data
	if empty(raw) {
		raw = e.alt
	}
	if empty(raw) {
		return nil, ErrMissingCall
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var w wireCall
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: call: %w", ErrMalformedEvent, err)
	}
	return w.call(), nil
}

func (w *wireCall) call() *Call {
	c := &Call{
		AgentID:             string(w.AgentID),
		CallID:              string(w.CallID),
		ToNumber:            string(w.ToNumber),
		FromNumber:          string(w.FromNumber),
		EndTimestamp:        w.EndTimestamp,
		DisconnectionReason: string(w.DisconnectionReason),
		RecordingURL:        string(w.RecordingURL),
		Transcript:          w.Transcript,
	}
	if an, ok := w.Analysis.(map[string]any); ok {
		data, _ := an["custom_analysis_data"].(map[string]any)
		c.Analysis = &CallAnalysis{CustomAnalysisData: data}
	}
	if cost, ok := w.Cost.(map[string]any); ok {
		c.Cost = &CallCost{TotalDurationSeconds: cost["total_duration_seconds"]}
	}
	if vars, ok := w.DynamicVariables.(map[string]any); ok {
		c.DynamicVariables = vars
	}
	return c
}

// empty mirrors a falsy JSON value: absent, null, "", 0, false, {} or [].
func empty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}

// AnalysisData returns the custom analysis map, never nil.
func (c *Call) AnalysisData() map[string]any {
	if c.Analysis == nil || c.Analysis.CustomAnalysisData == nil {
		return map[string]any{}
	}
	return c.Analysis.CustomAnalysisData
}

// Vars returns the dynamic variables, never nil.
func (c *Call) Vars() map[string]any {
	if c.DynamicVariables == nil {
		return map[string]any{}
	}
	return c.DynamicVariables
}

// DurationSeconds returns the raw total duration or nil.
func (c *Call) DurationSeconds() any {
	if c.Cost == nil {
		return nil
	}
	return c.Cost.TotalDurationSeconds
}
