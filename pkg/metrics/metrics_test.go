package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it registers the engine collectors", func() {
				So(manager, ShouldNotBeNil)
				manager.votes.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "jury_engine_votes_total")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("event"),
				WithSubsystem("judging"),
				WithMetricPrefix("hack"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names carry namespace, subsystem and prefix", func() {
				manager.skips.Inc()
				So(testutil.ToFloat64(manager.skips), ShouldEqual, 1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "event_judging_hack_skips_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsManagerSwitches(t *testing.T) {
	Convey("Given a disabled manager", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

		Convey("When collectors are updated", func() {
			manager.votes.Inc()
			manager.queueSize.Set(3)

			Convey("Then nothing reaches the configured registry", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
				So(testutil.ToFloat64(manager.votes), ShouldEqual, 1)
			})
		})
	})

	Convey("Given refresh intervals", t, func() {
		Convey("Then the default applies unless overridden", func() {
			So(NewManager(WithPrometheusRegistry(prometheus.NewRegistry())).RefreshInterval(), ShouldEqual, 10*time.Second)
			custom := NewManager(WithRefreshInterval(3*time.Second), WithPrometheusRegistry(prometheus.NewRegistry()))
			So(custom.RefreshInterval(), ShouldEqual, 3*time.Second)
			So(RefreshInterval(), ShouldEqual, 10*time.Second)
		})

		Convey("Then non-positive intervals are ignored", func() {
			m := NewManager(WithRefreshInterval(0), WithPrometheusRegistry(prometheus.NewRegistry()))
			So(m.RefreshInterval(), ShouldEqual, 10*time.Second)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording engine metrics", func() {
			before := testutil.ToFloat64(globalManager.votes)
			RecordVote(1.5)
			RecordVote(0.2)

			Convey("Then the vote counter advances", func() {
				So(testutil.ToFloat64(globalManager.votes)-before, ShouldEqual, 2)
			})
		})

		Convey("When recording labelled metrics", func() {
			So(func() {
				RecordAssignment("voted")
				RecordAssignmentFailure("window_closed")
				RecordFlag("absent")
				RecordSkip()
				RecordBusy()
				RecordConflictRetry("vote")
				RecordVoteDuplicate()
				UpdateClockRunning(true)
				UpdatePopulation(10, 8, 3)
				RecordStoreReadLatency(0.1)
				RecordStoreWriteLatency(0.2)
				UpdateStoreRecords("project", 10)
				RecordLeaderboardUpdate()
				UpdateLeaderboardSize(8)
				UpdateQueueSize(1)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(0.3)
				RecordWorkerError()
				RecordHTTPRequest("next", "GET", "200")
				RecordHTTPRequestDuration("next", "GET", "200", 1.2)
				RecordHTTPRateLimited("vote")
				RecordErrorByComponent("store", "conflict")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)

			Convey("And the clock gauge reflects the last state", func() {
				UpdateClockRunning(false)
				So(testutil.ToFloat64(globalManager.clockRunning), ShouldEqual, 0)
			})
		})

		Convey("When reading the registry", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
