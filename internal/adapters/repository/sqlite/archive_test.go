package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/jury/internal/domain/model"
)

func openTestArchive(t *testing.T) *FlagArchive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "flags.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestFlagArchive(t *testing.T) {
	convey.Convey("Given an empty archive", t, func() {
		ctx := context.Background()
		a := openTestArchive(t)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		convey.Convey("When flags are appended", func() {
			convey.So(a.Append(ctx, model.Flag{ID: "f1", JudgeID: "j1", ProjectID: "p1", Reason: model.FlagAbsent, Time: base}), convey.ShouldBeNil)
			convey.So(a.Append(ctx, model.Flag{ID: "f2", JudgeID: "j2", ProjectID: "p1", Reason: model.FlagCannotDemo, Time: base.Add(time.Minute)}), convey.ShouldBeNil)
			convey.So(a.Append(ctx, model.Flag{ID: "f3", JudgeID: "j1", ProjectID: "p2", Reason: model.FlagOffensive, Time: base.Add(2 * time.Minute)}), convey.ShouldBeNil)

			convey.Convey("Then they list oldest first", func() {
				got, err := a.List(ctx, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(got), convey.ShouldEqual, 3)
				convey.So(got[0].ID, convey.ShouldEqual, "f1")
				convey.So(got[0].Reason, convey.ShouldEqual, model.FlagAbsent)
				convey.So(got[0].Time.Equal(base), convey.ShouldBeTrue)
				convey.So(got[2].ID, convey.ShouldEqual, "f3")
			})

			convey.Convey("Then counts group by project", func() {
				counts, err := a.CountByProject(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(counts, convey.ShouldResemble, map[string]int{"p1": 2, "p2": 1})
			})

			convey.Convey("And re-appending a flag id is ignored", func() {
				convey.So(a.Append(ctx, model.Flag{ID: "f1", JudgeID: "j9", ProjectID: "p9", Reason: model.FlagTooComplex}), convey.ShouldBeNil)
				got, _ := a.List(ctx, 10)
				convey.So(len(got), convey.ShouldEqual, 3)
				convey.So(got[0].JudgeID, convey.ShouldEqual, "j1")
			})
		})

		convey.Convey("When a flag lacks ids", func() {
			convey.So(a.Append(ctx, model.Flag{ID: "x"}), convey.ShouldNotBeNil)
		})

		convey.Convey("When the limit is not positive", func() {
			_, err := a.List(ctx, 0)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a nil archive", t, func() {
		var a *FlagArchive
		err := a.Append(context.Background(), model.Flag{ID: "f", JudgeID: "j", ProjectID: "p"})
		convey.So(errors.Is(err, ErrNotConfigured), convey.ShouldBeTrue)
		convey.So(a.Close(), convey.ShouldBeNil)
	})

	convey.Convey("Given an empty path", t, func() {
		_, err := Open("  ")
		convey.So(err, convey.ShouldNotBeNil)
	})
}
