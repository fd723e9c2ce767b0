package ledger_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/callledger/internal/adapters/ledger"
	"github.com/okian/callledger/internal/adapters/objectstore/memory"
	domain "github.com/okian/callledger/internal/domain/ledger"
	"github.com/okian/callledger/internal/domain/model"
	"github.com/okian/callledger/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var (
	schema = model.MustSchema("Phone", "Name")
	loc    = ledger.Location{Bucket: "bucket", Path: "raw_leads/inbound_webhook.csv"}
)

func row(phone, name string) model.Row { return model.RowFromValues(schema, []string{phone, name}) }

func read(t *testing.T, mem *memory.Store) [][]string {
	t.Helper()
	data, _, err := mem.Read(context.Background(), loc.Bucket, loc.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tbl, err := domain.Decode(data, schema)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := make([][]string, 0, tbl.Len())
	for _, r := range tbl.Rows {
		out = append(out, r.Values())
	}
	return out
}

func fast() ledger.Option { return ledger.WithBackoff(time.Millisecond, 2*time.Millisecond) }

func TestAppend(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty ledger", t, func() {
		mem := memory.New()
		store := ledger.New(mem, fast())

		Convey("When a row is appended", func() {
			n, err := store.Append(ctx, loc, []model.Row{row("2125550123", "Ann")}, "Phone", schema)

			Convey("Then the object is created with a header", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(read(t, mem), ShouldResemble, [][]string{{"2125550123", "Ann"}})
			})

			Convey("Then appending the same row again changes nothing", func() {
				n2, err := store.Append(ctx, loc, []model.Row{row("2125550123", "Ann")}, "Phone", schema)
				So(err, ShouldBeNil)
				So(n2, ShouldEqual, 1)
				So(read(t, mem), ShouldResemble, [][]string{{"2125550123", "Ann"}})
			})

			Convey("Then a newer row for the same key replaces it", func() {
				_, err := store.Append(ctx, loc, []model.Row{row("5550100", "Bob")}, "Phone", schema)
				So(err, ShouldBeNil)
				_, err = store.Append(ctx, loc, []model.Row{row("2125550123", "Ann B")}, "Phone", schema)
				So(err, ShouldBeNil)
				So(read(t, mem), ShouldResemble, [][]string{{"5550100", "Bob"}, {"2125550123", "Ann B"}})
			})
		})
	})

	Convey("Given a ledger with an older header", t, func() {
		mem := memory.New()
		mem.Put(loc.Bucket, loc.Path, []byte("\"Phone\",\"Legacy\"\n\"1\",\"x\"\n"))
		store := ledger.New(mem, fast())

		n, err := store.Append(ctx, loc, []model.Row{row("2", "Two")}, "Phone", schema)

		Convey("Then old rows are re-indexed onto the new header", func() {
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(read(t, mem), ShouldResemble, [][]string{{"1", ""}, {"2", "Two"}})
		})
	})

	Convey("Given a competing writer between read and write", t, func() {
		var (
			fired atomic.Bool
			store *ledger.Store
		)
		mem := memory.New(memory.WithBeforeWrite(func(string, string) {
			if !fired.CompareAndSwap(false, true) {
				return
			}
			if _, err := store.Append(ctx, loc, []model.Row{row("1", "first")}, "Phone", schema); err != nil {
				t.Errorf("competing append: %v", err)
			}
		}))
		store = ledger.New(mem, fast())

		n, err := store.Append(ctx, loc, []model.Row{row("2", "second")}, "Phone", schema)

		Convey("Then the loser retries and both rows survive", func() {
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(read(t, mem), ShouldResemble, [][]string{{"1", "first"}, {"2", "second"}})
		})
	})

	Convey("Given concurrent appenders", t, func() {
		mem := memory.New()
		store := ledger.New(mem, ledger.WithMaxAttempts(50), fast())

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				phone := string(rune('0' + i))
				if _, err := store.Append(ctx, loc, []model.Row{row(phone, "n")}, "Phone", schema); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		Convey("Then no committed row is lost", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			So(len(read(t, mem)), ShouldEqual, 8)
		})
	})

	Convey("Given a writer that always loses", t, func() {
		var mem *memory.Store
		mem = memory.New(memory.WithBeforeWrite(func(b, p string) {
			mem.Put(b, p, []byte("\"Phone\",\"Name\"\n"))
		}))
		store := ledger.New(mem, ledger.WithMaxAttempts(3), fast())

		_, err := store.Append(ctx, loc, []model.Row{row("1", "x")}, "Phone", schema)

		Convey("Then a ConflictError is returned after the attempt budget", func() {
			So(errors.Is(err, ledger.ErrConflict), ShouldBeTrue)
			var ce *ledger.ConflictError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Attempts, ShouldEqual, 3)
			So(ce.Location, ShouldEqual, loc.String())
		})
	})

	Convey("Given a corrupt ledger", t, func() {
		mem := memory.New()
		mem.Put(loc.Bucket, loc.Path, []byte("Phone\n\"broken\n"))
		store := ledger.New(mem, fast())

		_, err := store.Append(ctx, loc, []model.Row{row("1", "x")}, "Phone", schema)

		Convey("Then ErrIO is returned without retrying", func() {
			So(errors.Is(err, ledger.ErrIO), ShouldBeTrue)
			So(errors.Is(err, ledger.ErrConflict), ShouldBeFalse)
		})
	})
}
