package breaker_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/okian/callledger/internal/adapters/breaker"
	"github.com/okian/callledger/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestBreaker(t *testing.T) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}
	settings := breaker.Settings{MinRequests: 3, FailureRatio: 0.5, Interval: time.Minute, Timeout: time.Hour, HalfOpenRequests: 1}
	boom := errors.New("boom")

	Convey("Given a breaker", t, func() {
		b := breaker.New("test", settings, nil)

		Convey("It passes results through while closed", func() {
			So(b.Do(func() error { return nil }), ShouldBeNil)
			So(b.Do(func() error { return boom }), ShouldEqual, boom)
			So(b.State(), ShouldEqual, "closed")
		})

		Convey("It opens after enough failures and rejects calls", func() {
			for i := 0; i < 3; i++ {
				_ = b.Do(func() error { return boom })
			}
			So(b.State(), ShouldEqual, "open")

			called := false
			err := b.Do(func() error { called = true; return nil })
			So(called, ShouldBeFalse)
			So(breaker.Rejected(err), ShouldBeTrue)
		})

		Convey("Ignored errors are returned but not counted", func() {
			expected := errors.New("not found")
			for i := 0; i < 5; i++ {
				err := b.DoIgnoring(func() error { return expected }, func(err error) bool { return errors.Is(err, expected) })
				So(err, ShouldEqual, expected)
			}
			So(b.State(), ShouldEqual, "closed")
		})
	})

	Convey("State conversions", t, func() {
		So(breaker.StateToFloat(gobreaker.StateOpen), ShouldEqual, 2)
		So(breaker.StateToString(gobreaker.StateHalfOpen), ShouldEqual, "half-open")
	})
}
