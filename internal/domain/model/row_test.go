package model_test

import (
	"testing"

	model "github.com/okian/callledger/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSchema(t *testing.T) {
	Convey("NewSchema", t, func() {
		Convey("accepts distinct names", func() {
			s, err := model.NewSchema("a", "b")
			So(err, ShouldBeNil)
			So(s.Index("b"), ShouldEqual, 1)
			So(s.Has("c"), ShouldBeFalse)
		})

		Convey("rejects duplicates and empties", func() {
			_, err := model.NewSchema("a", "a")
			So(err, ShouldWrap, model.ErrInvalidSchema)
			_, err = model.NewSchema("a", "")
			So(err, ShouldWrap, model.ErrInvalidSchema)
			_, err = model.NewSchema()
			So(err, ShouldWrap, model.ErrInvalidSchema)
		})

		Convey("Equal compares order", func() {
			So(model.MustSchema("a", "b").Equal(model.MustSchema("a", "b")), ShouldBeTrue)
			So(model.MustSchema("a", "b").Equal(model.MustSchema("b", "a")), ShouldBeFalse)
		})
	})
}

func TestRow(t *testing.T) {
	Convey("Given a row", t, func() {
		s := model.MustSchema("id", "name", "phone")
		r := model.NewRow(s)

		Convey("unset fields read as empty", func() {
			So(r.Values(), ShouldResemble, []string{"", "", ""})
			So(r.Get("missing"), ShouldEqual, "")
		})

		Convey("Set only touches known fields", func() {
			So(r.Set("name", "Ann"), ShouldBeTrue)
			So(r.Set("other", "x"), ShouldBeFalse)
			So(r.Get("name"), ShouldEqual, "Ann")
		})

		Convey("Values returns a copy", func() {
			v := r.Values()
			v[0] = "mutated"
			So(r.Get("id"), ShouldEqual, "")
		})

		Convey("Reindex adds and drops fields by name", func() {
			r.Set("id", "1")
			r.Set("phone", "555")
			out := r.Reindex(model.MustSchema("phone", "email", "id"))
			So(out.Values(), ShouldResemble, []string{"555", "", "1"})
		})

		Convey("RowFromValues pads short input", func() {
			out := model.RowFromValues(s, []string{"1"})
			So(out.Values(), ShouldResemble, []string{"1", "", ""})
		})
	})
}
