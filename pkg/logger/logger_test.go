package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Get().Info(ctx, "vote recorded", String("judge", "j-1"), Int("votes", 3), Bool("first", false))

			Convey("Then the record carries message, fields and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "vote recorded")
				So(out, ShouldContainSubstring, "judge=j-1")
				So(out, ShouldContainSubstring, "votes=3")
				So(out, ShouldContainSubstring, "source=")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When using a named logger with fields", func() {
			Named("scheduler").With(String("event", "e1")).Warn(ctx, "retrying", Error(errors.New("stale")))

			Convey("Then component and inherited fields are present", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "component=scheduler")
				So(out, ShouldContainSubstring, "event=e1")
				So(out, ShouldContainSubstring, "error=stale")
			})
		})

		Convey("When the level filters debug records", func() {
			So(SetLevelString("info"), ShouldBeNil)
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
			})
		})

		Convey("When setting an unknown level", func() {
			err := SetLevelString("verbose")

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When passing a nil writer", func() {
			So(InitWithWriter(nil), ShouldNotBeNil)
		})
	})
}

func TestNop(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := Nop().Named("x").With(String("k", "v"))

		Convey("Logging does not panic", func() {
			So(func() { l.Error(context.Background(), "dropped") }, ShouldNotPanic)
		})
	})
}
