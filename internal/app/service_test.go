package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/callledger/internal/adapters/analytics"
	"github.com/okian/callledger/internal/adapters/leads"
	"github.com/okian/callledger/internal/adapters/objectstore/memory"
	"github.com/okian/callledger/internal/app"
	"github.com/okian/callledger/internal/config"
	"github.com/okian/callledger/internal/domain/normalize"
	"github.com/okian/callledger/internal/domain/routing"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.StorageBackend = "memory"
	cfg.AnalyticsBackend = "none"
	cfg.FirestoreEnabled = false
	cfg.Timezone = "UTC"
	cfg.SideEffectWorkers = 2
	return cfg
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service on the memory backend", t, func() {
		svc := app.New(testConfig())

		Convey("Before Start there is no dispatcher", func() {
			So(svc.Dispatcher(), ShouldBeNil)
			So(svc.GetStats(context.Background())["started"], ShouldBeFalse)
			So(svc.Serve(context.Background()), ShouldEqual, app.ErrNotStarted)
		})

		Convey("When started without an override", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the embedded routes are active", func() {
				stats := svc.GetStats(context.Background())
				So(stats["started"], ShouldBeTrue)
				So(stats["routingSource"], ShouldEqual, "default")
				So(stats["routes"], ShouldEqual, 5)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["analyticsEnabled"], ShouldBeFalse)
			})

			Convey("Then Start is idempotent", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestServiceRoutingOverride(t *testing.T) {
	Convey("Given an override document in the object store", t, func() {
		mem := memory.New()
		mem.Put("config-bucket", "routing/agents.json", []byte(`{"agents":{"agent_x":{"handler":"campaign","bucket":"b","csv_path":"x.csv"}}}`))

		cfg := testConfig()
		cfg.AgentConfigURI = "gs://config-bucket/routing/agents.json"

		Convey("Then the override replaces the embedded table", func() {
			svc := app.New(cfg, app.WithObjectStore(mem))
			So(svc.Start(context.Background()), ShouldBeNil)
			defer svc.Stop()

			So(svc.Dispatcher().Routes().ProducerIDs(), ShouldResemble, []string{"agent_x"})
		})

		Convey("When the override is missing", func() {
			cfg.AgentConfigURI = "config-bucket/routing/missing.json"

			Convey("Then lenient mode keeps the embedded table", func() {
				svc := app.New(cfg, app.WithObjectStore(mem))
				So(svc.Start(context.Background()), ShouldBeNil)
				defer svc.Stop()
				So(svc.Dispatcher().Routes().Source(), ShouldEqual, "default")
			})

			Convey("Then strict mode fails startup", func() {
				cfg.RoutingStrict = true
				svc := app.New(cfg, app.WithObjectStore(mem))
				So(svc.Start(context.Background()), ShouldNotBeNil)
			})
		})

		Convey("When the override routes nothing", func() {
			mem.Put("config-bucket", "routing/empty.json", []byte(`{"agents":{}}`))
			cfg.AgentConfigURI = "config-bucket/routing/empty.json"
			cfg.RoutingStrict = true

			svc := app.New(cfg, app.WithObjectStore(mem))
			So(errors.Is(svc.Start(context.Background()), routing.ErrEmptyTable), ShouldBeTrue)
		})
	})
}

func TestServiceEndToEnd(t *testing.T) {
	Convey("Given a running service with recording side effects", t, func() {
		mem := memory.New()
		var inserts, updates atomic.Int32

		cfg := testConfig()
		svc := app.New(cfg,
			app.WithObjectStore(mem),
			app.WithAnalyticsSink(sinkFunc(func(context.Context, analytics.Record) error {
				inserts.Add(1)
				return nil
			})),
			app.WithLeadStore(leadFunc(func(context.Context, string, leads.CallResult) error {
				updates.Add(1)
				return nil
			})))
		So(svc.Start(context.Background()), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		body := `{"event":"call_analyzed","call":{"agent_id":"agent_ac2199cdcb5af27a4e0684035e","call_id":"call-9","to_number":"12125550123","end_timestamp":1700000000,"retell_llm_dynamic_variables":{"firestore_doc_id":"lead-9"}}}`
		res := svc.Dispatcher().Dispatch(context.Background(), []byte(body))

		Convey("Then the row is written and side effects run", func() {
			So(res.Outcome, ShouldEqual, app.OutcomeOK)

			rows := ledgerRows(t, mem, cfg.DefaultBucket, cfg.DefaultCSVPath, normalize.CoreSchema)
			So(rows, ShouldHaveLength, 1)
			So(rows[0].Get(normalize.ColPhone), ShouldEqual, "2125550123")
			So(rows[0].Get(normalize.ColDate), ShouldNotBeEmpty)

			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("service did not drain")
			}
			svc.Stop()

			So(inserts.Load(), ShouldEqual, 1)
			So(updates.Load(), ShouldEqual, 1)
		})
	})
}
