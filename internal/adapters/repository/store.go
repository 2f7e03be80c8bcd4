// Package repository holds the authoritative judging records and the read-side leaderboard.
package repository

import (
	"context"

	"github.com/okian/jury/internal/domain/model"
)

// Batch is a multi-record write. Judges and Projects carry the Version they
// were read at. Mutations edit the stored projects they name in place.
type Batch struct {
	Judges    []model.Judge
	Projects  []model.Project
	Mutations []Mutation
}

// Mutation edits projects inside a Commit without a version check. Apply
// receives the batch's judges and the current stored copies of Projects, in
// the listed order, while every record of the batch is locked. Whatever
// Apply leaves in either is what gets written. An error from Apply aborts
// the whole batch and is returned unchanged.
type Mutation struct {
	Projects []string
	Apply    func(judges []*model.Judge, projects []*model.Project) error
}

// Store provides linearizable per-record access to projects, judges and flags.
type Store interface {
	// CreateProject inserts p, assigning an id when empty.
	// Returns ErrConflict when the id exists and ErrInvalidRecord when invariants fail.
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	// CreateJudge inserts j, assigning an id when empty.
	CreateJudge(ctx context.Context, j model.Judge) (model.Judge, error)

	// GetProject returns a copy of the project or ErrNotFound.
	GetProject(ctx context.Context, id string) (model.Project, error)
	// GetJudge returns a copy of the judge or ErrNotFound.
	GetJudge(ctx context.Context, id string) (model.Judge, error)

	// UpdateProject applies fn to a copy under the record lock and commits it when
	// fn succeeds and the result is valid. Nothing is written otherwise.
	UpdateProject(ctx context.Context, id string, fn func(*model.Project) error) (model.Project, error)
	// UpdateJudge is UpdateProject for judges.
	UpdateJudge(ctx context.Context, id string, fn func(*model.Judge) error) (model.Judge, error)

	// Commit writes every record in b or none. A judge or project whose Version
	// no longer matches the stored one fails the whole batch with ErrConflict.
	// Mutations run after the version checks and before validation.
	Commit(ctx context.Context, b Batch) error

	// ListActive returns active projects, restricted to group when non-nil, ordered by id.
	ListActive(ctx context.Context, group *model.Group) ([]model.Project, error)
	// ListProjects returns every project ordered by id.
	ListProjects(ctx context.Context) ([]model.Project, error)
	// ListJudges returns every judge ordered by id.
	ListJudges(ctx context.Context) ([]model.Judge, error)

	// AppendFlag records f. Flags are never modified afterwards.
	AppendFlag(ctx context.Context, f model.Flag) error
	// ListFlags returns flags in insertion order.
	ListFlags(ctx context.Context) ([]model.Flag, error)
}
