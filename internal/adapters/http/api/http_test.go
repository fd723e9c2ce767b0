package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/okian/callledger/internal/adapters/http/api"
	"github.com/okian/callledger/internal/adapters/ledger"
	"github.com/okian/callledger/internal/adapters/objectstore/memory"
	"github.com/okian/callledger/internal/app"
	"github.com/okian/callledger/internal/domain/routing"
	"github.com/okian/callledger/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type mockDispatcher struct {
	result app.Result
	bodies []string
}

func (m *mockDispatcher) Dispatch(_ context.Context, body []byte) app.Result {
	m.bodies = append(m.bodies, string(body))
	return m.result
}

type mockStats map[string]any

func (m mockStats) GetStats(context.Context) map[string]any { return m }

func do(h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestWebhookTransport(t *testing.T) {
	Convey("Given a server over a mock dispatcher", t, func() {
		d := &mockDispatcher{result: app.Result{Status: http.StatusOK, Message: "ok", Outcome: app.OutcomeOK}}
		h := api.NewServer(d, mockStats{}, api.Options{MaxBodyBytes: 64}).Router(context.Background())

		Convey("When a JSON body is posted to /webhook", func() {
			w := do(h, http.MethodPost, "/webhook", "application/json; charset=utf-8", `{"event":"x"}`)

			Convey("Then the dispatcher result is written as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"status": "ok", "message": "ok"})
				So(d.bodies, ShouldResemble, []string{`{"event":"x"}`})
				So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
			})
		})

		Convey("When the body is posted to the root path", func() {
			w := do(h, http.MethodPost, "/", "application/json", `{}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(d.bodies, ShouldHaveLength, 1)
		})

		Convey("When the method is not POST", func() {
			w := do(h, http.MethodGet, "/webhook", "", "")

			Convey("Then it is rejected without dispatching", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
				So(d.bodies, ShouldBeEmpty)
			})
		})

		Convey("When the content type is not JSON", func() {
			w := do(h, http.MethodPost, "/webhook", "text/plain", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["status"], ShouldEqual, string(app.OutcomeClientError))
			So(d.bodies, ShouldBeEmpty)
		})

		Convey("When the body exceeds the limit", func() {
			w := do(h, http.MethodPost, "/webhook", "application/json", `{"event":"`+strings.Repeat("x", 100)+`"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["message"], ShouldContainSubstring, api.ErrBodyTooBig.Error())
			So(d.bodies, ShouldBeEmpty)
		})

		Convey("When the caller supplies a request id", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(api.RequestIDHeader, "req-7")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "req-7")
		})
	})
}

func TestWebhookStatuses(t *testing.T) {
	Convey("Given dispatcher outcomes", t, func() {
		cases := []app.Result{
			{Status: http.StatusBadRequest, Message: "missing agent_id", Outcome: app.OutcomeClientError},
			{Status: http.StatusOK, Message: "ledger write failed: conflict", Outcome: app.OutcomeLedgerError},
			{Status: http.StatusInternalServerError, Message: "handler failed", Outcome: app.OutcomeHandlerError},
		}
		for _, res := range cases {
			Convey("It relays "+string(res.Outcome), func() {
				h := api.NewServer(&mockDispatcher{result: res}, nil, api.Options{}).Router(context.Background())
				w := do(h, http.MethodPost, "/webhook", "application/json", `{}`)
				So(w.Code, ShouldEqual, res.Status)
				So(decode(w), ShouldResemble, map[string]any{"status": string(res.Outcome), "message": res.Message})
			})
		}
	})
}

func TestRateLimit(t *testing.T) {
	Convey("Given a limit of two requests per minute", t, func() {
		d := &mockDispatcher{result: app.Result{Status: http.StatusOK, Outcome: app.OutcomeOK}}
		h := api.NewServer(d, nil, api.Options{RateLimitPerMinute: 2}).Router(context.Background())

		codes := make([]int, 0, 3)
		for range 3 {
			codes = append(codes, do(h, http.MethodPost, "/webhook", "application/json", `{}`).Code)
		}
		So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})

		Convey("Then ops routes are not limited", func() {
			So(do(h, http.MethodGet, "/healthz", "", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestOpsRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		stats := mockStats{"routes": 5.0, "started": true}
		h := api.NewServer(&mockDispatcher{}, stats, api.Options{}).Router(context.Background())

		Convey("Then /healthz reports ok", func() {
			w := do(h, http.MethodGet, "/healthz", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("Then /stats returns the provider map", func() {
			w := do(h, http.MethodGet, "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w), ShouldResemble, map[string]any{"routes": 5.0, "started": true})
		})

		Convey("Then /metrics serves the registry", func() {
			do(h, http.MethodGet, "/healthz", "", "")
			w := do(h, http.MethodGet, "/metrics", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then the OpenAPI document is served", func() {
			So(do(h, http.MethodGet, "/openapi.yaml", "", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestWebhookEndToEnd(t *testing.T) {
	Convey("Given the real dispatcher over a memory ledger", t, func() {
		mem := memory.New()
		routes, err := routing.Default(routing.DefaultRegistry(), routing.Defaults{})
		So(err, ShouldBeNil)
		d := app.NewDispatcher(routes, ledger.New(mem))
		h := api.NewServer(d, nil, api.Options{}).Router(context.Background())

		Convey("When a routed call is posted", func() {
			body := `{"event":"call_analyzed","call":{"agent_id":"agent_ac2199cdcb5af27a4e0684035e","call_id":"c1","to_number":"12125550123","end_timestamp":1700000000}}`
			w := do(h, http.MethodPost, "/webhook", "application/json", body)

			Convey("Then it is acknowledged and the ledger object exists", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "ok")
				So(mem.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the payload is not JSON", func() {
			w := do(h, http.MethodPost, "/webhook", "application/json", `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(mem.Len(), ShouldEqual, 0)
		})
	})
}
