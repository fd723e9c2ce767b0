package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/okian/callledger/internal/config"
	"github.com/okian/callledger/pkg/logger"
	"github.com/okian/callledger/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartystreets/goconvey/convey"
)

type fakeServer struct {
	listenErr error
	release   chan struct{}
	shutdowns int
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns++
	close(f.release)
	return nil
}

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvPrefix+"ADDR", "127.0.0.1:0")
	t.Setenv(config.EnvPrefix+"STORAGE_BACKEND", "memory")
	t.Setenv(config.EnvPrefix+"ANALYTICS_BACKEND", "none")
	t.Setenv(config.EnvPrefix+"FIRESTORE_ENABLED", "false")
	t.Setenv(config.EnvPrefix+"LOG_LEVEL", "error")
}

func TestHTTPService(t *testing.T) {
	convey.Convey("Given an HTTP service", t, func() {
		convey.Convey("When the context is cancelled", func() {
			srv := &fakeServer{release: make(chan struct{})}
			svc := newHTTPService(srv, time.Second)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- svc.Serve(ctx) }()
			cancel()

			convey.Convey("Then the server is shut down gracefully", func() {
				err := <-done
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(srv.shutdowns, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When listening fails", func() {
			svc := newHTTPService(&fakeServer{listenErr: errors.New("address in use")}, time.Second)
			err := svc.Serve(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "address in use")
		})

		convey.So(newHTTPService(nil, 0).String(), convey.ShouldEqual, "http-server")
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics sampler", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := newSystemMetrics(5 * time.Millisecond).Serve(ctx)

		convey.Convey("Then it samples until the context ends", func() {
			convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			n, gatherErr := testutil.GatherAndCount(metrics.GetRegistry(), "callledger_system_goroutine_count")
			convey.So(gatherErr, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatal(err)
	}

	convey.Convey("Given a memory-backed configuration", t, func() {
		memoryEnv(t)

		convey.Convey("When run is cancelled after startup", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then it shuts down cleanly", func() {
				convey.So(run(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv(config.EnvPrefix+"LOG_FORMAT", "xml")

			convey.Convey("Then run fails before serving", func() {
				err := run(context.Background())
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
