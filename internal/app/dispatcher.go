package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/okian/callledger/internal/adapters/analytics"
	"github.com/okian/callledger/internal/adapters/leads"
	"github.com/okian/callledger/internal/adapters/ledger"
	"github.com/okian/callledger/internal/adapters/mq/queue"
	"github.com/okian/callledger/internal/domain/dedupe"
	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/internal/domain/normalize"
	"github.com/okian/callledger/internal/domain/routing"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
)

// Outcome labels a dispatch result in responses and metrics.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeOK           Outcome = "ok"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnrouted     Outcome = "unrouted"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeLedgerError  Outcome = "ledger_error"
	OutcomeClientError  Outcome = "client_error"
	OutcomeHandlerError Outcome = "handler_error"
)

// Result is the transport-neutral answer to one webhook.
type Result struct {
	Status  int
	Message string
	Outcome Outcome
}

// Appender writes rows to a ledger.
type Appender interface {
	Append(ctx context.Context, loc ledger.Location, rows []model.Row, dedupKey string, schema model.Schema) (int, error)
}

// Enqueuer accepts side-effect tasks without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) bool
}

// Dispatcher validates a webhook, routes it and runs its handler.
type Dispatcher struct {
	routes     *routing.Table
	normalizer *normalize.Normalizer
	ledger     Appender

	tasks     Enqueuer
	analytics analytics.Sink
	leads     leads.Store
	seen      dedupe.Deduper

	now    func() time.Time
	logger logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) DispatcherOption {
	return func(d *Dispatcher) {
		if n != nil {
			d.normalizer = n
		}
	}
}

// WithSideEffects enables analytics and lead updates through tasks. Nil
// sinks are skipped.
func WithSideEffects(tasks Enqueuer, sink analytics.Sink, store leads.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.tasks, d.analytics, d.leads = tasks, sink, store
	}
}

// WithDeduper suppresses repeated side effects for redelivered calls.
func WithDeduper(seen dedupe.Deduper) DispatcherOption {
	return func(d *Dispatcher) { d.seen = seen }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher returns a Dispatcher over an immutable routing table.
func NewDispatcher(routes *routing.Table, appender Appender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		routes:     routes,
		normalizer: normalize.New(),
		ledger:     appender,
		now:        time.Now,
		logger:     logger.Get().Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Routes returns the routing table in use.
func (d *Dispatcher) Routes() *routing.Table { return d.routes }

// Dispatch processes one webhook body.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) Result {
	res := d.dispatch(ctx, body)
	metrics.RecordWebhookEvent(string(res.Outcome))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, body []byte) Result {
	ev, err := model.ParseEvent(body)
	if err != nil {
		return d.clientError(ctx, fmt.Errorf("%w: %w", ErrClientError, err), "invalid JSON payload")
	}
	if !ev.IsCallAnalyzed() {
		return Result{Status: http.StatusOK, Message: "event ignored", Outcome: OutcomeIgnored}
	}

	call, err := ev.Call()
	if err != nil {
		return d.clientError(ctx, fmt.Errorf("%w: %w", ErrClientError, err), "invalid payload structure")
	}
	if call.AgentID == "" {
		return d.clientError(ctx, ErrClientError, "missing agent_id")
	}

	log := d.logger.With(logger.String("agent_id", call.AgentID), logger.String("call_id", call.CallID))

	target, ok := d.routes.Resolve(call.AgentID)
	if !ok {
		log.Warn(ctx, "unmapped agent, dropping payload")
		return Result{Status: http.StatusOK, Message: "agent not routed", Outcome: OutcomeUnrouted}
	}

	d.enqueueAnalytics(ctx, log, call, ev.Raw)

	row, total, err := d.handle(ctx, call, target)
	switch {
	case errors.Is(err, normalize.ErrSkip):
		log.Info(ctx, "missing or invalid end_timestamp, row skipped")
		return Result{Status: http.StatusOK, Message: "missing/invalid end_timestamp, row skipped", Outcome: OutcomeSkipped}

	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrIO):
		log.Error(ctx, "unable to update ledger",
			logger.String("ledger", target.Location()),
			logger.Error(err))
		d.enqueueLeadUpdate(ctx, log, call, target, row)
		return Result{Status: http.StatusOK, Message: "ledger write failed: " + err.Error(), Outcome: OutcomeLedgerError}

	case err != nil:
		fields := []logger.Field{logger.String("handler", target.Handler), logger.Error(err)}
		var pe *panicError
		if errors.As(err, &pe) {
			fields = append(fields, logger.String("stack", pe.stack))
		}
		log.Error(ctx, "handler threw exception", fields...)
		return Result{Status: http.StatusInternalServerError, Message: "handler failed", Outcome: OutcomeHandlerError}
	}

	log.Debug(ctx, "row appended",
		logger.String("ledger", target.Location()),
		logger.Int("rows", total))
	d.enqueueLeadUpdate(ctx, log, call, target, row)
	return Result{Status: http.StatusOK, Message: "ok", Outcome: OutcomeOK}
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("%v: panic: %v", ErrHandler, e.value) }

func (e *panicError) Unwrap() error { return ErrHandler }

// handle normalizes and appends. A panic anywhere below becomes a
// *panicError carrying the stack.
func (d *Dispatcher) handle(ctx context.Context, call *model.Call, target routing.Target) (row model.Row, total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()

	row, err = d.normalizer.Build(call, target.Variant, target.Schema)
	if err != nil {
		return row, 0, err
	}
	loc := ledger.Location{Bucket: target.Bucket, Path: target.Path}
	total, err = d.ledger.Append(ctx, loc, []model.Row{row}, target.DedupKey, target.Schema)
	return row, total, err
}

func (d *Dispatcher) enqueueAnalytics(ctx context.Context, log logger.Logger, call *model.Call, raw []byte) {
	if d.tasks == nil || d.analytics == nil {
		return
	}
	rec := analytics.NewRecord(call, raw, d.now())
	sink := d.analytics
	d.enqueue(ctx, log, queue.Task{
		Name:   "analytics",
		CallID: call.CallID,
		Run:    func(ctx context.Context) error { return sink.Insert(ctx, rec) },
	})
}

func (d *Dispatcher) enqueueLeadUpdate(ctx context.Context, log logger.Logger, call *model.Call, target routing.Target, row model.Row) {
	if d.tasks == nil || d.leads == nil || !target.UseRecordStore {
		return
	}
	docID := normalize.Text(call.Vars()["firestore_doc_id"])
	if docID == "" {
		log.Info(ctx, "payload lacks firestore_doc_id, lead not updated")
		return
	}
	res := leads.ResultFromRow(call.CallID, row, d.now())
	store := d.leads
	d.enqueue(ctx, log, queue.Task{
		Name:   "leads",
		CallID: call.CallID,
		Run: func(ctx context.Context) error {
			err := store.RecordCall(ctx, docID, res)
			if leads.Expected(err) {
				log.Info(ctx, "lead not updated", logger.String("lead", docID), logger.Error(err))
				return nil
			}
			return err
		},
	})
}

// enqueue hands t to the pool unless the same call already queued it.
func (d *Dispatcher) enqueue(ctx context.Context, log logger.Logger, t queue.Task) {
	key := t.CallID + ":" + t.Name
	if d.seen != nil && t.CallID != "" && d.seen.SeenAndRecord(ctx, key) {
		log.Debug(ctx, "side effect already queued for call", logger.String("task", t.Name))
		return
	}
	if !d.tasks.Enqueue(ctx, t) {
		if d.seen != nil && t.CallID != "" {
			d.seen.Unrecord(ctx, key)
		}
		log.Warn(ctx, "side effect queue full, task dropped", logger.String("task", t.Name))
	}
}

func (d *Dispatcher) clientError(ctx context.Context, err error, msg string) Result {
	d.logger.Debug(ctx, "rejected payload", logger.String("reason", msg), logger.Error(err))
	return Result{Status: http.StatusBadRequest, Message: msg, Outcome: OutcomeClientError}
}
