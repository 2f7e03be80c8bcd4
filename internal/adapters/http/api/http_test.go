package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/jury/internal/adapters/http/api"
	"github.com/okian/jury/internal/adapters/repository"
	service "github.com/okian/jury/internal/app"
	"github.com/okian/jury/internal/domain/assignment"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockLeaderboard serves canned rankings.
type mockLeaderboard struct {
	topN    []types.Entry
	topNErr error
	rank    types.Entry
	rankErr error
}

func (m *mockLeaderboard) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if m.topNErr != nil {
		return nil, m.topNErr
	}
	if n > len(m.topN) {
		n = len(m.topN)
	}
	return m.topN[:n], nil
}

func (m *mockLeaderboard) Rank(_ context.Context, _ string) (types.Entry, error) {
	if m.rankErr != nil {
		return types.Entry{}, m.rankErr
	}
	return m.rank, nil
}

// mockJudge returns err from every judge operation.
type mockJudge struct {
	err   error
	votes []string
}

func (m *mockJudge) GetNext(context.Context, string) (types.Assignment, error) {
	return types.Assignment{ProjectID: "p1"}, m.err
}

func (m *mockJudge) Vote(_ context.Context, judgeID string, choice assignment.Choice, requestID string) (types.PointerState, error) {
	m.votes = append(m.votes, judgeID+":"+string(choice)+":"+requestID)
	return types.PointerState{JudgeID: judgeID}, m.err
}

func (m *mockJudge) Flag(context.Context, string, model.FlagReason) (model.Flag, error) {
	return model.Flag{}, m.err
}

func (m *mockJudge) Skip(context.Context, string) (types.PointerState, error) {
	return types.PointerState{}, m.err
}

func (m *mockJudge) Busy(context.Context, string) (types.Assignment, error) {
	return types.Assignment{}, m.err
}

func (m *mockJudge) Advance(context.Context, string) (types.PointerState, error) {
	return types.PointerState{}, m.err
}

func (m *mockJudge) Star(context.Context, string, string, int) error {
	return m.err
}

func (m *mockJudge) JudgedProjects(context.Context, string) ([]types.JudgedProject, error) {
	return nil, m.err
}

func (m *mockJudge) JudgingTimer() time.Duration { return 90 * time.Second }

type mockStatsProvider struct {
	stats types.Stats
}

func (m *mockStatsProvider) Stats(context.Context) (types.Stats, error) { return m.stats, nil }
func (m *mockStatsProvider) GetStats() map[string]any                  { return map[string]any{"started": true} }

func do(h http.Handler, method, path, judge, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if judge != "" {
		req.Header.Set(api.JudgeHeader, judge)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.NewDecoder(w.Body).Decode(&body)
	return body.Code
}

func newServedService(opts ...api.Option) (*service.Service, *http.ServeMux) {
	svc := service.New()
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(context.Background(), mux)
	return svc, mux
}

func TestServer_JudgeFlow(t *testing.T) {
	Convey("Given a served engine with three projects and a judge", t, func() {
		ctx := context.Background()
		svc, mux := newServedService()
		for i, id := range []string{"a", "b", "c"} {
			_, err := svc.CreateProject(ctx, model.Project{ID: id, Name: strings.ToUpper(id), Location: i + 1})
			So(err, ShouldBeNil)
		}
		_, err := svc.CreateJudge(ctx, model.Judge{ID: "j1"})
		So(err, ShouldBeNil)

		Convey("When the clock has not started", func() {
			w := do(mux, http.MethodGet, "/judge/next", "j1", "")

			Convey("Then the window is locked", func() {
				So(w.Code, ShouldEqual, http.StatusLocked)
				So(errorCode(w), ShouldEqual, "window_closed")
			})
		})

		Convey("When the judge header is missing", func() {
			w := do(mux, http.MethodGet, "/judge/next", "", "")

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the clock is started over HTTP", func() {
			w := do(mux, http.MethodPost, "/admin/clock/start", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then GET /clock reports it running", func() {
				w := do(mux, http.MethodGet, "/clock", "", "")
				var st model.ClockState
				So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
				So(st.Running, ShouldBeTrue)
			})

			Convey("And the judge walks through a comparison", func() {
				w := do(mux, http.MethodGet, "/judge/next", "j1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var first types.Assignment
				So(json.NewDecoder(w.Body).Decode(&first), ShouldBeNil)
				So(first.ProjectID, ShouldEqual, "a")

				w = do(mux, http.MethodPost, "/judge/vote", "j1", `{"choice":"current"}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "no_previous_project")

				So(do(mux, http.MethodPost, "/judge/advance", "j1", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)

				w = do(mux, http.MethodPost, "/judge/vote", "j1", `{"choice":"previous","request_id":"r1"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				var st types.PointerState
				So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
				So(st.PrevProjectID, ShouldEqual, "a")
				So(st.NextProjectID, ShouldEqual, "b")

				Convey("Then a replayed vote returns the same pointers", func() {
					w := do(mux, http.MethodPost, "/judge/vote", "j1", `{"choice":"previous","request_id":"r1"}`)
					So(w.Code, ShouldEqual, http.StatusOK)
				})

				Convey("Then voting again without a request id conflicts", func() {
					w := do(mux, http.MethodPost, "/judge/vote", "j1", `{"choice":"previous"}`)
					So(w.Code, ShouldEqual, http.StatusConflict)
					So(errorCode(w), ShouldEqual, "not_assigned")
				})

				Convey("Then flagging the next project hides it", func() {
					So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)
					w := do(mux, http.MethodPost, "/judge/flag", "j1", `{"reason":"absent"}`)
					So(w.Code, ShouldEqual, http.StatusCreated)

					w = do(mux, http.MethodGet, "/admin/flags", "", "")
					var flags []model.Flag
					So(json.NewDecoder(w.Body).Decode(&flags), ShouldBeNil)
					So(flags, ShouldHaveLength, 1)
					So(flags[0].ProjectID, ShouldEqual, "c")
					So(flags[0].ProjectName, ShouldEqual, "C")

					w = do(mux, http.MethodGet, "/judge/next", "j1", "")
					So(w.Code, ShouldEqual, http.StatusNotFound)
					So(errorCode(w), ShouldEqual, "no_eligible_projects")
				})
			})

			Convey("And an unknown flag reason is rejected", func() {
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)
				w := do(mux, http.MethodPost, "/judge/flag", "j1", `{"reason":"busy"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "invalid_reason")
			})

			Convey("And an unknown choice is rejected", func() {
				w := do(mux, http.MethodPost, "/judge/vote", "j1", `{"choice":"both"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "invalid_choice")
			})

			Convey("And busy hands out another project", func() {
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)
				w := do(mux, http.MethodPost, "/judge/busy", "j1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var a types.Assignment
				So(json.NewDecoder(w.Body).Decode(&a), ShouldBeNil)
				So(a.ProjectID, ShouldEqual, "b")
			})

			Convey("And skip without an assignment conflicts", func() {
				w := do(mux, http.MethodPost, "/judge/skip", "j1", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
			})

			Convey("And a hidden judge is forbidden", func() {
				So(do(mux, http.MethodPost, "/admin/judges/j1/hide", "", "").Code, ShouldEqual, http.StatusOK)
				w := do(mux, http.MethodGet, "/judge/next", "j1", "")
				So(w.Code, ShouldEqual, http.StatusForbidden)

				So(do(mux, http.MethodPost, "/admin/judges/j1/unhide", "", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)
			})

			Convey("And the judge stars what they have judged", func() {
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodPost, "/judge/advance", "j1", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/judge/next", "j1", "").Code, ShouldEqual, http.StatusOK)

				w := do(mux, http.MethodPost, "/judge/star", "j1", `{"project_id":"a","stars":4}`)
				So(w.Code, ShouldEqual, http.StatusNoContent)

				w = do(mux, http.MethodGet, "/judge/projects", "j1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var judged []types.JudgedProject
				So(json.NewDecoder(w.Body).Decode(&judged), ShouldBeNil)
				So(judged, ShouldHaveLength, 1)
				So(judged[0].ProjectID, ShouldEqual, "a")
				So(judged[0].Name, ShouldEqual, "A")
				So(judged[0].Stars, ShouldEqual, 4)

				w = do(mux, http.MethodPost, "/judge/star", "j1", `{"project_id":"c","stars":2}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "not_seen")

				w = do(mux, http.MethodPost, "/judge/star", "j1", `{"project_id":"a","stars":9}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "invalid_stars")

				w = do(mux, http.MethodPost, "/judge/star", "j1", `{"stars":3}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And the judging timer is public", func() {
				w := do(mux, http.MethodGet, "/judge/timer", "", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					JudgingTimer int `json:"judging_timer"`
				}
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body.JudgingTimer, ShouldEqual, 300)
			})

			Convey("And an unknown judge is not found", func() {
				w := do(mux, http.MethodGet, "/judge/next", "ghost", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_Admin(t *testing.T) {
	Convey("Given a served engine", t, func() {
		ctx := context.Background()
		svc, mux := newServedService()
		_, err := svc.CreateProject(ctx, model.Project{ID: "a"})
		So(err, ShouldBeNil)
		_, err = svc.CreateJudge(ctx, model.Judge{ID: "j1"})
		So(err, ShouldBeNil)

		Convey("When moving a judge into a group that does not exist", func() {
			w := do(mux, http.MethodPost, "/admin/judges/j1/move", "", `{"group":4}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "invalid_group")
			})
		})

		Convey("When moving without a group", func() {
			w := do(mux, http.MethodPost, "/admin/judges/j1/move", "", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When moving into group zero", func() {
			w := do(mux, http.MethodPost, "/admin/judges/j1/move", "", `{"group":0}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When prioritizing and hiding a project", func() {
			w := do(mux, http.MethodPost, "/admin/projects/a/prioritize", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var p model.Project
			So(json.NewDecoder(w.Body).Decode(&p), ShouldBeNil)
			So(p.Prioritized, ShouldBeTrue)

			w = do(mux, http.MethodPost, "/admin/projects/a/hide", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(json.NewDecoder(w.Body).Decode(&p), ShouldBeNil)
			So(p.Active, ShouldBeFalse)
		})

		Convey("When listing records", func() {
			w := do(mux, http.MethodGet, "/admin/projects", "", "")
			var projects []model.Project
			So(json.NewDecoder(w.Body).Decode(&projects), ShouldBeNil)
			So(projects, ShouldHaveLength, 1)

			w = do(mux, http.MethodGet, "/admin/judges", "", "")
			var judges []model.Judge
			So(json.NewDecoder(w.Body).Decode(&judges), ShouldBeNil)
			So(judges, ShouldHaveLength, 1)
			So(judges[0].ID, ShouldEqual, "j1")
		})

		Convey("When acting on an unknown project", func() {
			w := do(mux, http.MethodPost, "/admin/projects/zzz/hide", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When using an unknown action", func() {
			w := do(mux, http.MethodPost, "/admin/projects/a/explode", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When resetting the clock", func() {
			do(mux, http.MethodPost, "/admin/clock/start", "", "")
			w := do(mux, http.MethodPost, "/admin/clock/reset", "", "")
			var st model.ClockState
			So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
			So(st.Running, ShouldBeFalse)
			So(st.Time, ShouldEqual, 0)
		})

		Convey("When reading stats", func() {
			w := do(mux, http.MethodGet, "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var body map[string]any
			So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
			So(body["projects"], ShouldEqual, 1.0)
			So(body["judges"], ShouldEqual, 1.0)
			So(body["service"], ShouldNotBeNil)
		})
	})
}

func TestServer_RateLimit(t *testing.T) {
	Convey("Given a server allowing a burst of two per judge", t, func() {
		deps := struct {
			*mockJudge
			api.AdminDependencies
			*mockLeaderboard
			*mockStatsProvider
		}{&mockJudge{}, nil, &mockLeaderboard{}, &mockStatsProvider{}}
		mux := http.NewServeMux()
		api.NewServer(deps, api.WithRateLimit(0.001, 2)).Register(context.Background(), mux)

		Convey("When one judge sends three requests", func() {
			codes := make([]int, 0, 3)
			for i := 0; i < 3; i++ {
				codes = append(codes, do(mux, http.MethodGet, "/judge/next", "j1", "").Code)
			}

			Convey("Then the third is rate limited", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
			})

			Convey("And another judge has its own budget", func() {
				So(do(mux, http.MethodGet, "/judge/next", "j2", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given a disabled limiter", t, func() {
		l := api.NewJudgeRateLimiter(0, 0)

		Convey("Then every request is allowed", func() {
			So(l, ShouldBeNil)
			So(l.Allow("j1"), ShouldBeTrue)
		})
	})
}

func TestJudgeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{repository.ErrConflict, http.StatusConflict, "conflict"},
		{assignment.ErrWindowClosed, http.StatusLocked, "window_closed"},
		{assignment.ErrNoEligibleProjects, http.StatusNotFound, "no_eligible_projects"},
		{assignment.ErrNotAssigned, http.StatusConflict, "not_assigned"},
		{assignment.ErrVoteRequired, http.StatusConflict, "vote_required"},
		{assignment.ErrJudgeInactive, http.StatusForbidden, "judge_inactive"},
		{assignment.ErrNotSeen, http.StatusConflict, "not_seen"},
		{assignment.ErrInvalidStars, http.StatusBadRequest, "invalid_stars"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	Convey("Given a judge handler whose engine fails", t, func() {
		for _, tc := range cases {
			deps := &mockJudge{err: fmt.Errorf("wrapped: %w", tc.err)}
			h := api.NewJudgeHandler(deps)

			req := httptest.NewRequest(http.MethodPost, "/judge/skip", nil)
			req.Header.Set(api.JudgeHeader, "j1")
			w := httptest.NewRecorder()
			h.HandleSkip(w, req)

			So(w.Code, ShouldEqual, tc.code)
			So(errorCode(w), ShouldEqual, tc.name)
		}
	})

	Convey("Given a vote with a request id", t, func() {
		deps := &mockJudge{}
		h := api.NewJudgeHandler(deps)
		req := httptest.NewRequest(http.MethodPost, "/judge/vote", strings.NewReader(`{"choice":"current","request_id":"abc"}`))
		req.Header.Set(api.JudgeHeader, "j9")
		w := httptest.NewRecorder()
		h.HandleVote(w, req)

		Convey("Then the id reaches the engine", func() {
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.votes, ShouldResemble, []string{"j9:current:abc"})
		})
	})

	Convey("Given a timer request", t, func() {
		h := api.NewJudgeHandler(&mockJudge{})
		w := httptest.NewRecorder()
		h.HandleTimer(w, httptest.NewRequest(http.MethodGet, "/judge/timer", nil))

		Convey("Then the timer is reported in seconds", func() {
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"judging_timer":90}`)
		})
	})

	Convey("Given a vote with unknown fields", t, func() {
		h := api.NewJudgeHandler(&mockJudge{})
		req := httptest.NewRequest(http.MethodPost, "/judge/vote", strings.NewReader(`{"winner":"a"}`))
		req.Header.Set(api.JudgeHeader, "j9")
		w := httptest.NewRecorder()
		h.HandleVote(w, req)

		So(w.Code, ShouldEqual, http.StatusBadRequest)
	})
}

func TestLeaderboardHandler_HandleGetRankings(t *testing.T) {
	Convey("Given a rankings handler", t, func() {
		mockLB := &mockLeaderboard{
			topN: []types.Entry{
				{Rank: 1, ProjectID: "p-1", Mu: 1.5},
				{Rank: 2, ProjectID: "p-2", Mu: 0.5},
				{Rank: 3, ProjectID: "p-3", Mu: -0.2},
			},
		}
		handler := api.NewLeaderboardHandler(mockLB, 100)

		Convey("When requesting top N entries", func() {
			req := httptest.NewRequest("GET", "/rankings?limit=2", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the top N entries", func() {
				handler.HandleGetRankings(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].ProjectID, ShouldEqual, "p-1")
				So(response[1].ProjectID, ShouldEqual, "p-2")
			})
		})

		Convey("When no limit is specified", func() {
			req := httptest.NewRequest("GET", "/rankings", nil)
			w := httptest.NewRecorder()
			handler.HandleGetRankings(w, req)

			Convey("Then every entry up to the cap is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var response []types.Entry
				So(json.NewDecoder(w.Body).Decode(&response), ShouldBeNil)
				So(response, ShouldHaveLength, 3)
			})
		})

		Convey("When the limit is malformed or too large", func() {
			for _, q := range []string{"?limit=0", "?limit=abc", "?limit=101"} {
				w := httptest.NewRecorder()
				handler.HandleGetRankings(w, httptest.NewRequest("GET", "/rankings"+q, nil))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the leaderboard returns an error", func() {
			mockLB.topNErr = fmt.Errorf("database error")
			req := httptest.NewRequest("GET", "/rankings?limit=10", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetRankings(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestRankHandler_HandleGetRank(t *testing.T) {
	Convey("Given a rank handler", t, func() {
		mockLB := &mockLeaderboard{
			rank: types.Entry{Rank: 5, ProjectID: "p-123", Mu: 0.85},
		}
		handler := api.NewRankHandler(mockLB)

		Convey("When requesting rank for an existing project", func() {
			req := httptest.NewRequest("GET", "/rankings/p-123", nil)
			req.SetPathValue("id", "p-123")
			w := httptest.NewRecorder()

			Convey("Then it should return the rank information", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var response types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.ProjectID, ShouldEqual, "p-123")
				So(response.Rank, ShouldEqual, 5)
			})
		})

		Convey("When requesting rank for an unranked project", func() {
			mockLB.rankErr = repository.ErrNotFound
			req := httptest.NewRequest("GET", "/rankings/nonexistent", nil)
			req.SetPathValue("id", "nonexistent")
			w := httptest.NewRecorder()
			handler.HandleGetRank(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		handler := api.NewStatsHandler(&mockStatsProvider{stats: types.Stats{Projects: 7, Judges: 3, AvgSeen: 2.5}})

		Convey("When requesting stats", func() {
			w := httptest.NewRecorder()
			handler.HandleStats(w, httptest.NewRequest("GET", "/stats", nil))

			Convey("Then engine and service stats are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body["projects"], ShouldEqual, 7.0)
				So(body["avg_seen"], ShouldEqual, 2.5)
				So(body["service"], ShouldResemble, map[string]any{"started": true})
			})
		})
	})
}
