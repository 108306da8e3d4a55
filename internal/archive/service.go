// Package archive owns the soft-delete state of the content tree.
//
// Module archiving cascades physically: the module's dependents are small
// bounded sets, so the flag is pushed onto every assignment and quiz in
// chunked batches. Course archiving does not cascade; a course can own an
// unbounded tree, so its archived flag is enforced at read time by the
// visibility filter, which re-checks every ancestor and never trusts a
// cascade.
package archive

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/pkg/monitoring"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrCourseNotFound = errors.New("course not found")
)

// PartialCascadeError reports a cascade batch that failed after the owning
// module's own write succeeded, leaving the module flag ahead of its
// dependents. The caller must retry; the service does not.
type PartialCascadeError struct {
	ModuleID  string
	Written   int // dependents whose batch committed
	Remaining int // dependents left untouched
	Err       error
}

func (e *PartialCascadeError) Error() string {
	return fmt.Sprintf("archive cascade for module %s incomplete: %d written, %d remaining: %v",
		e.ModuleID, e.Written, e.Remaining, e.Err)
}

func (e *PartialCascadeError) Unwrap() error { return e.Err }

type Service struct {
	store docstore.Store
	hier  *hierarchy.Repo
	log   *zap.Logger
}

func NewService(store docstore.Store, hier *hierarchy.Repo, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, hier: hier, log: log}
}

// SetModuleArchived flips the module's archived flag and cascades it onto
// every dependent assignment and quiz via merge-writes batched below the
// store's per-batch ceiling. Unarchiving touches the same two fields and
// nothing else.
func (s *Service) SetModuleArchived(ctx context.Context, moduleID string, archived bool) error {
	if _, err := s.hier.Module(ctx, moduleID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrModuleNotFound
		}
		return err
	}

	flag := docstore.Fields{"archived": archived, "updatedAt": docstore.ServerTimestamp}
	if err := s.store.Set(ctx, hierarchy.CollModules, moduleID, flag, true); err != nil {
		return err
	}

	assignments, err := s.hier.AssignmentsByModule(ctx, moduleID)
	if err != nil {
		return &PartialCascadeError{ModuleID: moduleID, Err: err}
	}
	quizzes, err := s.hier.QuizzesByModule(ctx, moduleID)
	if err != nil {
		return &PartialCascadeError{ModuleID: moduleID, Err: err}
	}

	ops := make([]docstore.WriteOp, 0, len(assignments)+len(quizzes))
	for _, a := range assignments {
		ops = append(ops, docstore.WriteOp{Collection: hierarchy.CollAssignments, ID: a.ID, Fields: flag, Merge: true})
	}
	for _, q := range quizzes {
		ops = append(ops, docstore.WriteOp{Collection: hierarchy.CollQuizzes, ID: q.ID, Fields: flag, Merge: true})
	}

	if err := s.writeBatched(ctx, moduleID, ops); err != nil {
		monitoring.CascadeOps.WithLabelValues("module", "partial").Inc()
		return err
	}
	monitoring.CascadeOps.WithLabelValues("module", "ok").Inc()
	s.log.Info("module archive cascade",
		zap.String("module", moduleID),
		zap.Bool("archived", archived),
		zap.Int("dependents", len(ops)))
	return nil
}

// SetCourseArchived toggles the course flag only. Dependents keep their own
// archived state; readers resolve the course transitively.
func (s *Service) SetCourseArchived(ctx context.Context, courseID string, archived bool) error {
	if _, err := s.hier.Course(ctx, courseID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrCourseNotFound
		}
		return err
	}
	fields := docstore.Fields{"archived": archived, "updatedAt": docstore.ServerTimestamp}
	if archived {
		fields["archivedAt"] = docstore.ServerTimestamp
	} else {
		fields["archivedAt"] = 0
	}
	if err := s.store.Set(ctx, hierarchy.CollCourses, courseID, fields, true); err != nil {
		return err
	}
	monitoring.CascadeOps.WithLabelValues("course", "ok").Inc()
	return nil
}

// DeleteModule removes a module together with its dependents and renumbers
// the surviving modules of the course to stay dense 1..N.
func (s *Service) DeleteModule(ctx context.Context, moduleID string) error {
	mod, err := s.hier.Module(ctx, moduleID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrModuleNotFound
		}
		return err
	}

	assignments, err := s.hier.AssignmentsByModule(ctx, moduleID)
	if err != nil {
		return err
	}
	quizzes, err := s.hier.QuizzesByModule(ctx, moduleID)
	if err != nil {
		return err
	}

	ops := make([]docstore.WriteOp, 0, len(assignments)+len(quizzes)+1)
	for _, a := range assignments {
		ops = append(ops, docstore.WriteOp{Collection: hierarchy.CollAssignments, ID: a.ID, Delete: true})
	}
	for _, q := range quizzes {
		ops = append(ops, docstore.WriteOp{Collection: hierarchy.CollQuizzes, ID: q.ID, Delete: true})
	}
	ops = append(ops, docstore.WriteOp{Collection: hierarchy.CollModules, ID: moduleID, Delete: true})
	if err := s.writeBatched(ctx, moduleID, ops); err != nil {
		return err
	}

	siblings, err := s.hier.ModulesByCourse(ctx, mod.CourseID)
	if err != nil {
		return err
	}
	var renumber []docstore.WriteOp
	next := 1
	for _, m := range siblings {
		if m.ID == moduleID {
			continue
		}
		if m.ModuleNumber != next {
			renumber = append(renumber, docstore.WriteOp{
				Collection: hierarchy.CollModules,
				ID:         m.ID,
				Fields:     docstore.Fields{"moduleNumber": next, "updatedAt": docstore.ServerTimestamp},
				Merge:      true,
			})
		}
		next++
	}
	return s.writeBatched(ctx, moduleID, renumber)
}

// writeBatched splits ops below the store ceiling and reports how far a
// failing cascade got.
func (s *Service) writeBatched(ctx context.Context, moduleID string, ops []docstore.WriteOp) error {
	written := 0
	for len(ops) > 0 {
		n := len(ops)
		if n > docstore.MaxBatchOps {
			n = docstore.MaxBatchOps
		}
		if err := s.store.BatchWrite(ctx, ops[:n]); err != nil {
			return &PartialCascadeError{ModuleID: moduleID, Written: written, Remaining: len(ops), Err: err}
		}
		written += n
		ops = ops[n:]
	}
	return nil
}
