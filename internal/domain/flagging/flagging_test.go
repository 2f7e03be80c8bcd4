package flagging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/flagging"
	"github.com/okian/jury/internal/domain/model"
)

func TestHandler_Flag(t *testing.T) {
	Convey("Given a rated project and a judge", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		h := flagging.New(store, flagging.WithNow(func() time.Time { return fixed }))

		_, err := store.CreateProject(ctx, model.Project{ID: "p1", Name: "Rocket", Location: 7, Mu: 1.25, SigmaSq: 0.4, Votes: 3, Seen: 4, Active: true})
		So(err, ShouldBeNil)
		_, err = store.CreateJudge(ctx, model.Judge{ID: "j1", Name: "Ada", Alpha: 10, Beta: 1, Active: true})
		So(err, ShouldBeNil)

		Convey("When the judge flags it", func() {
			f, err := h.Flag(ctx, "p1", "j1", model.FlagAbsent)

			Convey("Then the flag is recorded and the project deactivated", func() {
				So(err, ShouldBeNil)
				So(f.ID, ShouldNotBeEmpty)
				So(f.Time.Equal(fixed), ShouldBeTrue)

				p, _ := store.GetProject(ctx, "p1")
				So(p.Active, ShouldBeFalse)
			})

			Convey("And the rating history is untouched", func() {
				p, _ := store.GetProject(ctx, "p1")
				So(p.Mu, ShouldEqual, 1.25)
				So(p.SigmaSq, ShouldEqual, 0.4)
				So(p.Votes, ShouldEqual, 3)
				So(p.Seen, ShouldEqual, 4)
			})

			Convey("And flagging again records a second flag without another write", func() {
				before, _ := store.GetProject(ctx, "p1")
				_, err := h.Flag(ctx, "p1", "j1", model.FlagOffensive)
				So(err, ShouldBeNil)

				after, _ := store.GetProject(ctx, "p1")
				So(after.Version, ShouldEqual, before.Version)
				flags, _ := store.ListFlags(ctx)
				So(len(flags), ShouldEqual, 2)
			})

			Convey("And List fills display fields", func() {
				flags, err := h.List(ctx)
				So(err, ShouldBeNil)
				So(len(flags), ShouldEqual, 1)
				So(flags[0].ProjectName, ShouldEqual, "Rocket")
				So(flags[0].ProjectLocation, ShouldEqual, 7)
				So(flags[0].JudgeName, ShouldEqual, "Ada")
			})
		})

		Convey("When the reason is unknown", func() {
			_, err := h.Flag(ctx, "p1", "j1", model.FlagReason("busy"))

			Convey("Then it fails and nothing changes", func() {
				So(errors.Is(err, flagging.ErrInvalidReason), ShouldBeTrue)
				p, _ := store.GetProject(ctx, "p1")
				So(p.Active, ShouldBeTrue)
				flags, _ := store.ListFlags(ctx)
				So(flags, ShouldBeEmpty)
			})
		})

		Convey("When the project does not exist", func() {
			_, err := h.Flag(ctx, "ghost", "j1", model.FlagAbsent)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
