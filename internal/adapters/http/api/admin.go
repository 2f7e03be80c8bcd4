package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/jury/internal/domain/model"
)

// AdminDependencies defines the operations behind the admin routes.
type AdminDependencies interface {
	StartClock(ctx context.Context) model.ClockState
	StopClock(ctx context.Context) model.ClockState
	ResetClock(ctx context.Context) model.ClockState
	Clock(ctx context.Context) model.ClockState

	MoveJudge(ctx context.Context, judgeID string, group int) (model.Judge, error)
	HideJudge(ctx context.Context, judgeID string) (model.Judge, error)
	UnhideJudge(ctx context.Context, judgeID string) (model.Judge, error)

	HideProject(ctx context.Context, projectID string) (model.Project, error)
	UnhideProject(ctx context.Context, projectID string) (model.Project, error)
	PrioritizeProject(ctx context.Context, projectID string, prioritized bool) (model.Project, error)

	Projects(ctx context.Context) ([]model.Project, error)
	Judges(ctx context.Context) ([]model.Judge, error)
	Flags(ctx context.Context) ([]model.Flag, error)
}

// AdminHandler handles admin requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type moveRequest struct {
	Group *int `json:"group"`
}

// HandleGetClock handles GET /clock.
func (h *AdminHandler) HandleGetClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Clock(r.Context()))
}

// HandleClock handles POST /admin/clock/{start|stop|reset}.
func (h *AdminHandler) HandleClock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.PathValue("action") {
	case "start":
		writeJSON(w, http.StatusOK, h.deps.StartClock(ctx))
	case "stop":
		writeJSON(w, http.StatusOK, h.deps.StopClock(ctx))
	case "reset":
		writeJSON(w, http.StatusOK, h.deps.ResetClock(ctx))
	default:
		http.NotFound(w, r)
	}
}

// HandleJudge handles POST /admin/judges/{id}/{move|hide|unhide}.
func (h *AdminHandler) HandleJudge(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_judge"
	ctx, id := r.Context(), r.PathValue("id")

	var (
		j   model.Judge
		err error
	)
	switch r.PathValue("action") {
	case "move":
		var req moveRequest
		if err := decodeBody(r, &req); err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		if req.Group == nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("group is required")))
			return
		}
		j, err = h.deps.MoveJudge(ctx, id, *req.Group)
	case "hide":
		j, err = h.deps.HideJudge(ctx, id)
	case "unhide":
		j, err = h.deps.UnhideJudge(ctx, id)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleProject handles POST /admin/projects/{id}/{hide|unhide|prioritize|deprioritize}.
func (h *AdminHandler) HandleProject(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_project"
	ctx, id := r.Context(), r.PathValue("id")

	var (
		p   model.Project
		err error
	)
	switch r.PathValue("action") {
	case "hide":
		p, err = h.deps.HideProject(ctx, id)
	case "unhide":
		p, err = h.deps.UnhideProject(ctx, id)
	case "prioritize":
		p, err = h.deps.PrioritizeProject(ctx, id, true)
	case "deprioritize":
		p, err = h.deps.PrioritizeProject(ctx, id, false)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListProjects handles GET /admin/projects.
func (h *AdminHandler) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.deps.Projects(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.admin_projects", err))
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// HandleListJudges handles GET /admin/judges.
func (h *AdminHandler) HandleListJudges(w http.ResponseWriter, r *http.Request) {
	judges, err := h.deps.Judges(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.admin_judges", err))
		return
	}
	if judges == nil {
		judges = []model.Judge{}
	}
	writeJSON(w, http.StatusOK, judges)
}

// HandleListFlags handles GET /admin/flags.
func (h *AdminHandler) HandleListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.deps.Flags(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.admin_flags", err))
		return
	}
	if flags == nil {
		flags = []model.Flag{}
	}
	writeJSON(w, http.StatusOK, flags)
}
