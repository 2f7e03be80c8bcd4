// Package flagging records disqualifying observations and pulls flagged
// projects out of the assignable pool. Rating history is never touched.
package flagging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/logger"
	"github.com/okian/jury/pkg/metrics"
)

// ErrInvalidReason is returned for reasons outside model.FlagReasons.
var ErrInvalidReason = errors.New("invalid flag reason")

// errAlreadyInactive short-circuits the deactivate update.
var errAlreadyInactive = errors.New("project already inactive")

// Store is the subset of the rating store the handler needs.
type Store interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	GetJudge(ctx context.Context, id string) (model.Judge, error)
	UpdateProject(ctx context.Context, id string, fn func(*model.Project) error) (model.Project, error)
	AppendFlag(ctx context.Context, f model.Flag) error
	ListFlags(ctx context.Context) ([]model.Flag, error)
}

// Handler appends flags and deactivates projects.
type Handler struct {
	store Store
	now   func() time.Time
	log   logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithNow replaces the flag timestamp source.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// New constructs a Handler over store.
func New(store Store, opts ...Option) *Handler {
	h := &Handler{store: store, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Flag records a flag against projectID and deactivates it.
// Flagging an inactive project still records the flag.
func (h *Handler) Flag(ctx context.Context, projectID, judgeID string, reason model.FlagReason) (model.Flag, error) {
	if _, err := model.ParseFlagReason(string(reason)); err != nil {
		return model.Flag{}, fmt.Errorf("%w: %w", ErrInvalidReason, err)
	}
	if _, err := h.store.GetProject(ctx, projectID); err != nil {
		return model.Flag{}, fmt.Errorf("flag project: %w", err)
	}

	f := model.Flag{
		ID:        uuid.NewString(),
		JudgeID:   judgeID,
		ProjectID: projectID,
		Time:      h.now().UTC(),
		Reason:    reason,
	}
	if err := h.store.AppendFlag(ctx, f); err != nil {
		return model.Flag{}, fmt.Errorf("append flag: %w", err)
	}

	_, err := h.store.UpdateProject(ctx, projectID, func(p *model.Project) error {
		if !p.Active {
			return errAlreadyInactive
		}
		p.Active = false
		p.LastActivity = f.Time
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyInactive):
		h.log.Debug(ctx, "flag on inactive project", logger.String("project", projectID))
	case err != nil:
		return model.Flag{}, fmt.Errorf("deactivate project: %w", err)
	}

	metrics.RecordFlag(string(reason))
	h.log.Info(ctx, "project flagged",
		logger.String("project", projectID),
		logger.String("judge", judgeID),
		logger.String("reason", string(reason)),
	)
	return f, nil
}

// List returns every flag with display fields filled from current records.
// Records that no longer resolve leave their display fields empty.
func (h *Handler) List(ctx context.Context) ([]model.Flag, error) {
	flags, err := h.store.ListFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	projects := make(map[string]model.Project)
	judges := make(map[string]model.Judge)
	for i := range flags {
		f := &flags[i]
		p, ok := projects[f.ProjectID]
		if !ok {
			if p, err = h.store.GetProject(ctx, f.ProjectID); err == nil {
				projects[f.ProjectID] = p
				ok = true
			}
		}
		if ok {
			f.ProjectName, f.ProjectLocation = p.Name, p.Location
		}
		j, ok := judges[f.JudgeID]
		if !ok {
			if j, err = h.store.GetJudge(ctx, f.JudgeID); err == nil {
				judges[f.JudgeID] = j
				ok = true
			}
		}
		if ok {
			f.JudgeName = j.Name
		}
	}
	return flags, nil
}
