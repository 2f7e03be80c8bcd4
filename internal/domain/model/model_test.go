package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/jury/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestProjectValidate(t *testing.T) {
	convey.Convey("Given a project", t, func() {
		p := model.Project{ID: "p1", SigmaSq: 1}

		convey.Convey("When it is well formed", func() {
			convey.So(p.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When sigma_sq is zero", func() {
			p.SigmaSq = 0
			convey.So(errors.Is(p.Validate(), model.ErrNonPositiveVariance), convey.ShouldBeTrue)
		})

		convey.Convey("When votes exceed seen", func() {
			p.Votes, p.Seen = 2, 1
			convey.So(errors.Is(p.Validate(), model.ErrVotesExceedSeen), convey.ShouldBeTrue)
		})

		convey.Convey("When the id is missing", func() {
			p.ID = ""
			convey.So(errors.Is(p.Validate(), model.ErrMissingID), convey.ShouldBeTrue)
		})
	})
}

func TestJudgeSeen(t *testing.T) {
	convey.Convey("Given a judge", t, func() {
		j := model.Judge{ID: "j1", Alpha: 10, Beta: 1, State: model.StateIdle}

		convey.Convey("When marking the same project twice", func() {
			j.MarkSeen("a")
			j.MarkSeen("b")
			j.MarkSeen("a")

			convey.Convey("Then it appears once and order is kept", func() {
				convey.So(j.SeenProjects, convey.ShouldResemble, []string{"a", "b"})
				convey.So(j.Validate(), convey.ShouldBeNil)
			})

			convey.Convey("And unsee removes it", func() {
				j.Unsee("a")
				convey.So(j.SeenProjects, convey.ShouldResemble, []string{"b"})
			})
		})

		convey.Convey("When cloning", func() {
			j.MarkSeen("a")
			c := j.Clone()
			c.MarkSeen("z")

			convey.Convey("Then the original seen list is untouched", func() {
				convey.So(j.SeenProjects, convey.ShouldResemble, []string{"a"})
			})
		})

		convey.Convey("When the seen list has duplicates", func() {
			j.SeenProjects = []string{"a", "a"}
			convey.So(errors.Is(j.Validate(), model.ErrDuplicateSeen), convey.ShouldBeTrue)
		})

		convey.Convey("When starring seen projects", func() {
			j.MarkSeen("a")
			j.MarkSeen("b")
			j.SetStars("a", 4)
			j.SetStars("b", 2)

			convey.Convey("Then the stars validate", func() {
				convey.So(j.Stars, convey.ShouldResemble, map[string]int{"a": 4, "b": 2})
				convey.So(j.Validate(), convey.ShouldBeNil)
			})

			convey.Convey("And zero clears them", func() {
				j.SetStars("b", 0)
				convey.So(j.Stars, convey.ShouldResemble, map[string]int{"a": 4})
			})

			convey.Convey("And unsee drops them with the project", func() {
				j.Unsee("a")
				convey.So(j.Stars, convey.ShouldResemble, map[string]int{"b": 2})
			})

			convey.Convey("And clones do not share them", func() {
				c := j.Clone()
				c.SetStars("a", 1)
				convey.So(j.Stars["a"], convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When stars are invalid", func() {
			j.MarkSeen("a")
			j.Stars = map[string]int{"z": 3}
			convey.So(errors.Is(j.Validate(), model.ErrStarsUnseen), convey.ShouldBeTrue)
			j.Stars = map[string]int{"a": model.MaxStars + 1}
			convey.So(errors.Is(j.Validate(), model.ErrStarsOutOfRange), convey.ShouldBeTrue)
		})

		convey.Convey("When the group counter is negative", func() {
			j.CurrentGroupCount = -1
			convey.So(errors.Is(j.Validate(), model.ErrNegativeCounter), convey.ShouldBeTrue)
		})

		convey.Convey("When assigned without a next project", func() {
			j.State = model.StateAssigned
			convey.So(errors.Is(j.Validate(), model.ErrDanglingAssignment), convey.ShouldBeTrue)
		})
	})
}

func TestGroup(t *testing.T) {
	convey.Convey("Given the group [0,10)", t, func() {
		g := model.Group{Start: 0, End: 10}

		convey.So(g.Contains(0), convey.ShouldBeTrue)
		convey.So(g.Contains(9), convey.ShouldBeTrue)
		convey.So(g.Contains(10), convey.ShouldBeFalse)
		convey.So(g.Overlaps(model.Group{Start: 10, End: 20}), convey.ShouldBeFalse)
		convey.So(g.Overlaps(model.Group{Start: 9, End: 20}), convey.ShouldBeTrue)
	})
}

func TestParseFlagReason(t *testing.T) {
	convey.Convey("Given client flag reasons", t, func() {
		r, err := model.ParseFlagReason("too-complex")
		convey.So(err, convey.ShouldBeNil)
		convey.So(r, convey.ShouldEqual, model.FlagTooComplex)

		_, err = model.ParseFlagReason("busy")
		convey.So(errors.Is(err, model.ErrUnknownFlagReason), convey.ShouldBeTrue)
	})
}
