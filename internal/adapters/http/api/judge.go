package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/jury/internal/domain/assignment"
	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/internal/domain/types"
)

// JudgeDependencies defines the operations a judge drives.
type JudgeDependencies interface {
	GetNext(ctx context.Context, judgeID string) (types.Assignment, error)
	Vote(ctx context.Context, judgeID string, choice assignment.Choice, requestID string) (types.PointerState, error)
	Flag(ctx context.Context, judgeID string, reason model.FlagReason) (model.Flag, error)
	Skip(ctx context.Context, judgeID string) (types.PointerState, error)
	Busy(ctx context.Context, judgeID string) (types.Assignment, error)
	Advance(ctx context.Context, judgeID string) (types.PointerState, error)
	Star(ctx context.Context, judgeID, projectID string, stars int) error
	JudgedProjects(ctx context.Context, judgeID string) ([]types.JudgedProject, error)
	JudgingTimer() time.Duration
}

// JudgeHandler handles judge requests.
type JudgeHandler struct {
	deps JudgeDependencies
}

// NewJudgeHandler creates a new judge handler.
func NewJudgeHandler(deps JudgeDependencies) *JudgeHandler {
	return &JudgeHandler{deps: deps}
}

type voteRequest struct {
	Choice    string `json:"choice"`
	RequestID string `json:"request_id"`
}

type flagRequest struct {
	Reason string `json:"reason"`
}

type starRequest struct {
	ProjectID string `json:"project_id"`
	Stars     int    `json:"stars"`
}

type timerResponse struct {
	JudgingTimer int `json:"judging_timer"`
}

// caller writes 400 and returns false when the judge header is missing.
func caller(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	id, ok := judgeID(r)
	if !ok {
		writeFailure(w, NewKind(op, ErrMissingJudge))
	}
	return id, ok
}

// HandleNext handles GET /judge/next.
func (h *JudgeHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_next"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	a, err := h.deps.GetNext(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleVote handles POST /judge/vote.
func (h *JudgeHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_vote"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	choice, err := assignment.ParseChoice(req.Choice)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	st, err := h.deps.Vote(r.Context(), id, choice, req.RequestID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleFlag handles POST /judge/flag.
func (h *JudgeHandler) HandleFlag(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_flag"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	var req flagRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	reason, err := model.ParseFlagReason(req.Reason)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	f, err := h.deps.Flag(r.Context(), id, reason)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// HandleSkip handles POST /judge/skip.
func (h *JudgeHandler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "api.judge_skip", h.deps.Skip)
}

// HandleAdvance handles POST /judge/advance.
func (h *JudgeHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	h.pointerOp(w, r, "api.judge_advance", h.deps.Advance)
}

// HandleBusy handles POST /judge/busy.
func (h *JudgeHandler) HandleBusy(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_busy"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	a, err := h.deps.Busy(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleStar handles POST /judge/star.
func (h *JudgeHandler) HandleStar(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_star"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	var req starRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.ProjectID == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Star(r.Context(), id, req.ProjectID, req.Stars); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProjects handles GET /judge/projects.
func (h *JudgeHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	const op = "api.judge_projects"
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	out, err := h.deps.JudgedProjects(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTimer handles GET /judge/timer. The value is in seconds.
func (h *JudgeHandler) HandleTimer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, timerResponse{JudgingTimer: int(h.deps.JudgingTimer() / time.Second)})
}

func (h *JudgeHandler) pointerOp(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string) (types.PointerState, error),
) {
	id, ok := caller(w, r, op)
	if !ok {
		return
	}
	st, err := fn(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
