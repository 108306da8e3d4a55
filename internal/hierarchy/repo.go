package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openclass/openclass-lms/internal/docstore"
)

var ErrNotFound = docstore.ErrNotFound

// ErrAncestorArchived reports a mutation aimed at a document whose own
// archived flag, or an ancestor's, is set. Distinct from ErrNotFound:
// the document exists but is frozen.
var ErrAncestorArchived = errors.New("ancestor archived")

// Repo provides typed read accessors over the document store. All fan-out
// lookups go through the chunked query helper so no call ever exceeds the
// store's disjunction cap.
type Repo struct {
	store docstore.Store
}

func NewRepo(store docstore.Store) *Repo { return &Repo{store: store} }

func (r *Repo) Store() docstore.Store { return r.store }

func getInto(ctx context.Context, s docstore.Store, collection, id string, v interface{}) error {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return doc.DataTo(v)
}

func (r *Repo) Course(ctx context.Context, id string) (Course, error) {
	var c Course
	err := getInto(ctx, r.store, CollCourses, id, &c)
	c.ID = id
	return c, err
}

func (r *Repo) Module(ctx context.Context, id string) (Module, error) {
	var m Module
	err := getInto(ctx, r.store, CollModules, id, &m)
	m.ID = id
	return m, err
}

func (r *Repo) Assignment(ctx context.Context, id string) (Assignment, error) {
	var a Assignment
	err := getInto(ctx, r.store, CollAssignments, id, &a)
	a.ID = id
	return a, err
}

func (r *Repo) Quiz(ctx context.Context, id string) (Quiz, error) {
	var q Quiz
	err := getInto(ctx, r.store, CollQuizzes, id, &q)
	q.ID = id
	return q, err
}

func (r *Repo) User(ctx context.Context, id string) (User, error) {
	var u User
	err := getInto(ctx, r.store, CollUsers, id, &u)
	u.ID = id
	return u, err
}

func (r *Repo) Submission(ctx context.Context, assignmentID, studentID string) (Submission, error) {
	var s Submission
	id := SubmissionID(assignmentID, studentID)
	err := getInto(ctx, r.store, CollSubmissions, id, &s)
	s.ID = id
	return s, err
}

// AttemptByPath resolves an "attempts/<id>" reference.
func (r *Repo) AttemptByPath(ctx context.Context, path string) (Attempt, error) {
	coll, id, ok := strings.Cut(path, "/")
	if !ok || coll != CollAttempts || id == "" {
		return Attempt{}, errors.New("malformed attempt path: " + path)
	}
	var a Attempt
	err := getInto(ctx, r.store, CollAttempts, id, &a)
	a.ID = id
	return a, err
}

func (r *Repo) QuizSummary(ctx context.Context, userID, quizID string) (QuizSummary, error) {
	var s QuizSummary
	id := SummaryID(userID, quizID)
	err := getInto(ctx, r.store, CollQuizSummaries, id, &s)
	s.ID = id
	return s, err
}

// CheckAssignmentActive verifies the assignment and every existing
// ancestor up to the course are unarchived. A missing ancestor does not
// block; archive state is only enforced on documents that exist.
func (r *Repo) CheckAssignmentActive(ctx context.Context, assignmentID string) error {
	a, err := r.Assignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
	if a.Archived {
		return fmt.Errorf("assignment %s: %w", assignmentID, ErrAncestorArchived)
	}
	return r.checkChainActive(ctx, a.ModuleID, a.CourseID)
}

// CheckQuizActive verifies the quiz and every existing ancestor up to the
// course are unarchived, with the same leniency on missing documents.
func (r *Repo) CheckQuizActive(ctx context.Context, quizID string) error {
	q, err := r.Quiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
	if q.Archived {
		return fmt.Errorf("quiz %s: %w", quizID, ErrAncestorArchived)
	}
	return r.checkChainActive(ctx, q.ModuleID, q.CourseID)
}

func (r *Repo) checkChainActive(ctx context.Context, moduleID, courseID string) error {
	if moduleID != "" {
		mod, err := r.Module(ctx, moduleID)
		switch {
		case err == nil:
			if mod.Archived {
				return fmt.Errorf("module %s: %w", moduleID, ErrAncestorArchived)
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}
	}
	if courseID != "" {
		course, err := r.Course(ctx, courseID)
		switch {
		case err == nil:
			if course.Archived {
				return fmt.Errorf("course %s: %w", courseID, ErrAncestorArchived)
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}
	}
	return nil
}

// ClassesByIDs resolves enrollments via chunked "in" lookups.
func (r *Repo) ClassesByIDs(ctx context.Context, ids []string) ([]Class, error) {
	docs, err := docstore.QueryInChunks(ctx, r.store, CollClasses, docstore.FieldID, docstore.OpIn, ids)
	if err != nil {
		return nil, err
	}
	return decodeClasses(docs)
}

// CoursesByAssignedClasses resolves courses whose targeting set intersects
// the given class ids, via chunked array-contains-any lookups.
func (r *Repo) CoursesByAssignedClasses(ctx context.Context, classIDs []string) ([]Course, error) {
	docs, err := docstore.QueryInChunks(ctx, r.store, CollCourses, "assignedClasses", docstore.OpArrayContainsAny, classIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Course, 0, len(docs))
	for _, d := range docs {
		var c Course
		if err := d.DataTo(&c); err != nil {
			return nil, err
		}
		c.ID = d.ID
		out = append(out, c)
	}
	return out, nil
}

// AssignmentsByCourses resolves assignments under a course set via chunked
// "in" lookups.
func (r *Repo) AssignmentsByCourses(ctx context.Context, courseIDs []string) ([]Assignment, error) {
	docs, err := docstore.QueryInChunks(ctx, r.store, CollAssignments, "courseId", docstore.OpIn, courseIDs)
	if err != nil {
		return nil, err
	}
	return decodeAssignments(docs)
}

func (r *Repo) AssignmentsByModule(ctx context.Context, moduleID string) ([]Assignment, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollAssignments).Where("moduleId", docstore.OpEqual, moduleID))
	if err != nil {
		return nil, err
	}
	return decodeAssignments(docs)
}

func (r *Repo) QuizzesByModule(ctx context.Context, moduleID string) ([]Quiz, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollQuizzes).Where("moduleId", docstore.OpEqual, moduleID))
	if err != nil {
		return nil, err
	}
	out := make([]Quiz, 0, len(docs))
	for _, d := range docs {
		var q Quiz
		if err := d.DataTo(&q); err != nil {
			return nil, err
		}
		q.ID = d.ID
		out = append(out, q)
	}
	return out, nil
}

func (r *Repo) ModulesByCourse(ctx context.Context, courseID string) ([]Module, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollModules).
		Where("courseId", docstore.OpEqual, courseID).
		OrderBy("moduleNumber", false))
	if err != nil {
		return nil, err
	}
	out := make([]Module, 0, len(docs))
	for _, d := range docs {
		var m Module
		if err := d.DataTo(&m); err != nil {
			return nil, err
		}
		m.ID = d.ID
		out = append(out, m)
	}
	return out, nil
}

// EssaysByAttemptPath loads every essay submission referencing one attempt.
func (r *Repo) EssaysByAttemptPath(ctx context.Context, path string) ([]EssaySubmission, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollEssays).Where("attemptRefPath", docstore.OpEqual, path))
	if err != nil {
		return nil, err
	}
	out := make([]EssaySubmission, 0, len(docs))
	for _, d := range docs {
		var e EssaySubmission
		if err := d.DataTo(&e); err != nil {
			return nil, err
		}
		e.ID = d.ID
		out = append(out, e)
	}
	return out, nil
}

// SiblingAttempts loads every attempt under one (user, quiz) summary.
func (r *Repo) SiblingAttempts(ctx context.Context, userID, quizID string) ([]Attempt, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollAttempts).
		Where("userId", docstore.OpEqual, userID).
		Where("quizId", docstore.OpEqual, quizID))
	if err != nil {
		return nil, err
	}
	out := make([]Attempt, 0, len(docs))
	for _, d := range docs {
		var a Attempt
		if err := d.DataTo(&a); err != nil {
			return nil, err
		}
		a.ID = d.ID
		out = append(out, a)
	}
	return out, nil
}

// QuizSummariesByUser loads every quiz roll-up a user owns.
func (r *Repo) QuizSummariesByUser(ctx context.Context, userID string) ([]QuizSummary, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollQuizSummaries).Where("userId", docstore.OpEqual, userID))
	if err != nil {
		return nil, err
	}
	out := make([]QuizSummary, 0, len(docs))
	for _, d := range docs {
		var s QuizSummary
		if err := d.DataTo(&s); err != nil {
			return nil, err
		}
		s.ID = d.ID
		out = append(out, s)
	}
	return out, nil
}

// AssignmentGradesByUser loads every assignment-grade mirror a user owns.
func (r *Repo) AssignmentGradesByUser(ctx context.Context, userID string) ([]AssignmentGrade, error) {
	docs, err := r.store.Run(ctx, docstore.NewQuery(CollAssignmentGrades).Where("userId", docstore.OpEqual, userID))
	if err != nil {
		return nil, err
	}
	out := make([]AssignmentGrade, 0, len(docs))
	for _, d := range docs {
		var g AssignmentGrade
		if err := d.DataTo(&g); err != nil {
			return nil, err
		}
		g.ID = d.ID
		out = append(out, g)
	}
	return out, nil
}

func decodeClasses(docs []docstore.Doc) ([]Class, error) {
	out := make([]Class, 0, len(docs))
	for _, d := range docs {
		var c Class
		if err := d.DataTo(&c); err != nil {
			return nil, err
		}
		c.ID = d.ID
		out = append(out, c)
	}
	return out, nil
}

func decodeAssignments(docs []docstore.Doc) ([]Assignment, error) {
	out := make([]Assignment, 0, len(docs))
	for _, d := range docs {
		var a Assignment
		if err := d.DataTo(&a); err != nil {
			return nil, err
		}
		a.ID = d.ID
		out = append(out, a)
	}
	return out, nil
}
