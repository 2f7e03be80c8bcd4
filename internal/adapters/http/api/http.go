// Package api declares HTTP contracts and route registration helpers.
//
// Judge routes identify the caller through the X-Judge-ID header set by an
// upstream session layer; nothing here authenticates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/okian/jury/internal/domain/types"
	"github.com/okian/jury/pkg/logger"
)

// JudgeHeader carries the caller's judge id.
const JudgeHeader = "X-Judge-ID"

const defaultMaxRankingsLimit = 500

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	JudgeDependencies
	AdminDependencies
	LeaderboardDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by rankings queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	judgeHandler       *JudgeHandler
	adminHandler       *AdminHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler

	limiter *JudgeRateLimiter
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxLimit  int
	rateLimit float64
	burst     int
	logger    logger.Logger
}

// WithMaxRankingsLimit caps GET /rankings?limit.
func WithMaxRankingsLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithRateLimit bounds requests per judge. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *serverConfig) {
		c.rateLimit, c.burst = rps, burst
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{maxLimit: defaultMaxRankingsLimit, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		judgeHandler:       NewJudgeHandler(deps),
		adminHandler:       NewAdminHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLimit),
		rankHandler:        NewRankHandler(deps),
		limiter:            NewJudgeRateLimiter(cfg.rateLimit, cfg.burst),
		logger:             cfg.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	judge := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.limiter.Middleware(h, endpoint), endpoint)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /rankings", MetricsMiddleware(s.leaderboardHandler.HandleGetRankings, "rankings"))
	mux.HandleFunc("GET /rankings/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /clock", MetricsMiddleware(s.adminHandler.HandleGetClock, "clock"))

	mux.HandleFunc("GET /judge/next", judge(s.judgeHandler.HandleNext, "judge_next"))
	mux.HandleFunc("POST /judge/vote", judge(s.judgeHandler.HandleVote, "judge_vote"))
	mux.HandleFunc("POST /judge/flag", judge(s.judgeHandler.HandleFlag, "judge_flag"))
	mux.HandleFunc("POST /judge/skip", judge(s.judgeHandler.HandleSkip, "judge_skip"))
	mux.HandleFunc("POST /judge/busy", judge(s.judgeHandler.HandleBusy, "judge_busy"))
	mux.HandleFunc("POST /judge/advance", judge(s.judgeHandler.HandleAdvance, "judge_advance"))
	mux.HandleFunc("POST /judge/star", judge(s.judgeHandler.HandleStar, "judge_star"))
	mux.HandleFunc("GET /judge/projects", judge(s.judgeHandler.HandleProjects, "judge_projects"))
	mux.HandleFunc("GET /judge/timer", MetricsMiddleware(s.judgeHandler.HandleTimer, "judge_timer"))

	mux.HandleFunc("POST /admin/clock/{action}", MetricsMiddleware(s.adminHandler.HandleClock, "admin_clock"))
	mux.HandleFunc("POST /admin/judges/{id}/{action}", MetricsMiddleware(s.adminHandler.HandleJudge, "admin_judge"))
	mux.HandleFunc("POST /admin/projects/{id}/{action}", MetricsMiddleware(s.adminHandler.HandleProject, "admin_project"))
	mux.HandleFunc("GET /admin/projects", MetricsMiddleware(s.adminHandler.HandleListProjects, "admin_projects"))
	mux.HandleFunc("GET /admin/judges", MetricsMiddleware(s.adminHandler.HandleListJudges, "admin_judges"))
	mux.HandleFunc("GET /admin/flags", MetricsMiddleware(s.adminHandler.HandleListFlags, "admin_flags"))

	s.logger.Debug(ctx, "api routes registered")
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure writes err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}

// judgeID extracts the caller from the request.
func judgeID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(JudgeHeader))
	return id, id != ""
}

// decodeBody decodes an optional JSON body into v. An empty body is allowed.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
