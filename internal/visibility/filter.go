// Package visibility computes, read-only, which assignments a student can
// see. An assignment is visible iff its course is active, its module (if
// any) is active, the assignment itself is active, and its targeting set
// is either empty or intersects the student's active class enrollments.
// Every ancestor is re-checked on each call; the filter never assumes an
// archive cascade has run.
package visibility

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
)

var ErrStudentNotFound = errors.New("student not found")

// StudentAssignment pairs a visible assignment with the student's own
// submission when one exists.
type StudentAssignment struct {
	hierarchy.Assignment
	Submission *hierarchy.Submission `json:"submission,omitempty"`
}

type Filter struct {
	hier *hierarchy.Repo
	log  *zap.Logger
}

func NewFilter(hier *hierarchy.Repo, log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filter{hier: hier, log: log}
}

// VisibleAssignmentsForStudent resolves the student's visible assignment
// set, ordered by publishAt descending. Submission lookups are best-effort:
// a missed lookup drops the submission, never the call.
func (f *Filter) VisibleAssignmentsForStudent(ctx context.Context, studentID string) ([]StudentAssignment, error) {
	student, err := f.hier.User(ctx, studentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	// 1. active class enrollments
	classes, err := f.hier.ClassesByIDs(ctx, student.ClassIDs)
	if err != nil {
		return nil, err
	}
	activeClasses := map[string]struct{}{}
	for _, c := range classes {
		if !c.Archived {
			activeClasses[c.ID] = struct{}{}
		}
	}
	if len(activeClasses) == 0 {
		return []StudentAssignment{}, nil
	}

	// 2. active courses targeting any of those classes
	courses, err := f.hier.CoursesByAssignedClasses(ctx, setKeys(activeClasses))
	if err != nil {
		return nil, err
	}
	var courseIDs []string
	for _, c := range courses {
		if !c.Archived {
			courseIDs = append(courseIDs, c.ID)
		}
	}
	if len(courseIDs) == 0 {
		return []StudentAssignment{}, nil
	}

	// 3. assignments under those courses
	assignments, err := f.hier.AssignmentsByCourses(ctx, courseIDs)
	if err != nil {
		return nil, err
	}

	// per-call module memo; must not outlive this request
	modules := map[string]*hierarchy.Module{}

	visible := make([]StudentAssignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Archived {
			continue
		}
		// 4. targeting: empty set means whole course
		if len(a.ClassIDs) > 0 && !intersects(a.ClassIDs, activeClasses) {
			continue
		}
		// 5. ancestor module state; independent of course archiving
		if a.ModuleID != "" {
			mod, err := f.module(ctx, modules, a.ModuleID)
			if err != nil {
				return nil, err
			}
			// a missing module orphans the assignment; keep it hidden
			if mod == nil || mod.Archived {
				continue
			}
		}
		visible = append(visible, StudentAssignment{Assignment: a})
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].PublishAt > visible[j].PublishAt
	})

	// 6. best-effort submission attach
	for i := range visible {
		sub, err := f.hier.Submission(ctx, visible[i].Assignment.ID, studentID)
		if err != nil {
			if !errors.Is(err, docstore.ErrNotFound) {
				f.log.Warn("submission lookup failed",
					zap.String("assignment", visible[i].Assignment.ID),
					zap.String("student", studentID),
					zap.Error(err))
			}
			continue
		}
		s := sub
		visible[i].Submission = &s
	}
	return visible, nil
}

func (f *Filter) module(ctx context.Context, memo map[string]*hierarchy.Module, id string) (*hierarchy.Module, error) {
	if m, ok := memo[id]; ok {
		return m, nil
	}
	mod, err := f.hier.Module(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			memo[id] = nil
			return nil, nil
		}
		return nil, err
	}
	memo[id] = &mod
	return &mod, nil
}

func intersects(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
