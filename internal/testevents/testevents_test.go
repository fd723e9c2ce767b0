package testevents

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func testConfig(baseURL string) *Config {
	table, err := routing.Default(routing.DefaultRegistry(), routing.Defaults{})
	if err != nil {
		panic(err)
	}
	return &Config{
		BaseURL:   baseURL,
		NumEvents: 40,
		Workers:   4,
		Timeout:   5 * time.Second,
		AgentIDs:  table.ProducerIDs(),
		Redeliver: 0.25,
		Unrouted:  0.1,
		Skipped:   0.1,
	}
}

func TestGenerateEvents(t *testing.T) {
	Convey("Given a generator configuration", t, func() {
		cfg := testConfig("")
		stats := newStats()

		events, err := generateEvents(context.Background(), cfg, stats)

		Convey("Then every kind is accounted for", func() {
			So(err, ShouldBeNil)
			So(len(events), ShouldBeGreaterThanOrEqualTo, cfg.NumEvents)
			So(stats.EventsGenerated, ShouldEqual, len(events))

			var total int
			for _, n := range stats.Expected {
				total += n
			}
			So(total, ShouldEqual, len(events))
		})

		Convey("Then redeliveries repeat an earlier call id", func() {
			ids := make(map[string]bool)
			for _, ev := range events {
				if ev.Kind == KindRedelivery {
					So(ids[ev.Call.CallID], ShouldBeTrue)
					continue
				}
				ids[ev.Call.CallID] = true
			}
		})

		Convey("Then skipped events carry no end timestamp", func() {
			for _, ev := range events {
				data, err := json.Marshal(ev)
				So(err, ShouldBeNil)
				if ev.Kind == KindSkipped {
					So(string(data), ShouldNotContainSubstring, "end_timestamp")
				} else {
					So(string(data), ShouldContainSubstring, `"end_timestamp":`)
				}
			}
		})

		Convey("Then no agents is an error", func() {
			cfg.AgentIDs = nil
			_, err := generateEvents(context.Background(), cfg, newStats())
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunAgainstServer(t *testing.T) {
	Convey("Given the webhook server over a memory ledger", t, func() {
		routes, err := routing.Default(routing.DefaultRegistry(), routing.Defaults{})
		So(err, ShouldBeNil)
		d := app.NewDispatcher(routes, ledger.New(memory.New(), ledger.WithMaxAttempts(20)))
		srv := httptest.NewServer(api.NewServer(d, nil, api.Options{}).Router(context.Background()))
		defer srv.Close()

		Convey("When the load test runs", func() {
			cfg := testConfig(srv.URL)
			cfg.OutputFile = filepath.Join(t.TempDir(), "events.json")

			Convey("Then every outcome matches what was sent", func() {
				So(Run(context.Background(), cfg), ShouldBeNil)
				_, statErr := os.Stat(cfg.OutputFile)
				So(statErr, ShouldBeNil)
			})
		})
	})
}

func TestVerifyOutcomes(t *testing.T) {
	Convey("Given stats that disagree with the plan", t, func() {
		stats := newStats()
		stats.Expected[KindRouted] = 2
		stats.Expected[KindUnrouted] = 1
		stats.Outcomes["ok"] = 2
		stats.Outcomes["unrouted"] = 0

		err := verifyOutcomes(stats)
		So(errors.Is(err, ErrVerification), ShouldBeTrue)
	})
}
