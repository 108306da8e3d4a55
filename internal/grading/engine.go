// Package grading recomputes the denormalized grade roll-ups: per-attempt
// combined score, per-quiz best score, per-user averages. Every aggregate
// is a pure function of its children at computation time. Nothing is
// incremented; each trigger re-derives from a fresh scan, so an
// interrupted or raced recompute is corrected by the next one.
package grading

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/pkg/monitoring"
)

var ErrEssayNotFound = errors.New("essay submission not found")

// defaultEssayMaxScore applies when a graded essay carries no maxScore.
const defaultEssayMaxScore = 10

// RecomputeResult reports what a recompute did. Skipped is set when the
// referenced attempt no longer exists: the grade itself stays saved, but
// the summary could not be updated, and callers surface that to the
// grading teacher.
type RecomputeResult struct {
	AttemptID     string `json:"attemptId,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Percent       int    `json:"percent"`
	GradedPercent int    `json:"gradedPercent"`
	AutoPercent   int    `json:"autoPercent"`
}

type Engine struct {
	store docstore.Store
	hier  *hierarchy.Repo
	guard WriteGuard
	log   *zap.Logger
}

func NewEngine(store docstore.Store, hier *hierarchy.Repo, guard WriteGuard, log *zap.Logger) *Engine {
	if guard == nil {
		guard = NoGuard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, hier: hier, guard: guard, log: log}
}

// GradeEssay records a teacher's score on one essay submission, then
// recomputes the roll-ups of the attempt it references.
func (e *Engine) GradeEssay(ctx context.Context, essayID string, score, maxScore float64, gradedBy string) (RecomputeResult, error) {
	doc, err := e.store.Get(ctx, hierarchy.CollEssays, essayID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return RecomputeResult{}, ErrEssayNotFound
		}
		return RecomputeResult{}, err
	}
	var essay hierarchy.EssaySubmission
	if err := doc.DataTo(&essay); err != nil {
		return RecomputeResult{}, err
	}
	// refuse before the grade lands; an archived quiz tree is frozen
	if err := e.hier.CheckQuizActive(ctx, essay.QuizID); err != nil {
		return RecomputeResult{}, err
	}
	fields := docstore.Fields{
		"status":   hierarchy.EssayGraded,
		"score":    score,
		"gradedBy": gradedBy,
		"gradedAt": docstore.ServerTimestamp,
	}
	if maxScore > 0 {
		fields["maxScore"] = maxScore
	}
	if err := e.store.Set(ctx, hierarchy.CollEssays, essayID, fields, true); err != nil {
		return RecomputeResult{}, err
	}
	return e.RecomputeAttempt(ctx, essay.AttemptRefPath)
}

// RecomputeAttempt re-derives the attempt's combined score from its essay
// submissions and stored auto score, then the quiz summary from all
// sibling attempts, then the user's quiz average from all summaries.
// A version-guard conflict triggers one full re-derivation.
func (e *Engine) RecomputeAttempt(ctx context.Context, attemptPath string) (RecomputeResult, error) {
	start := time.Now()
	res, err := e.recomputeAttempt(ctx, attemptPath)
	if errors.Is(err, ErrRollupConflict) {
		monitoring.GuardConflicts.Inc()
		e.log.Warn("roll-up conflict, re-deriving", zap.String("attempt", attemptPath))
		res, err = e.recomputeAttempt(ctx, attemptPath)
	}
	monitoring.RecomputeDuration.WithLabelValues("attempt").Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		monitoring.RecomputeOps.WithLabelValues("attempt", "error").Inc()
	case res.Skipped:
		monitoring.RecomputeOps.WithLabelValues("attempt", "skipped").Inc()
	default:
		monitoring.RecomputeOps.WithLabelValues("attempt", "ok").Inc()
	}
	return res, err
}

func (e *Engine) recomputeAttempt(ctx context.Context, attemptPath string) (RecomputeResult, error) {
	attempt, err := e.hier.AttemptByPath(ctx, attemptPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			e.log.Warn("attempt gone, skipping roll-up", zap.String("attempt", attemptPath))
			return RecomputeResult{Skipped: true, Reason: "attempt no longer exists"}, nil
		}
		return RecomputeResult{}, err
	}

	// graded essay components, re-derived from source of truth
	essays, err := e.hier.EssaysByAttemptPath(ctx, attemptPath)
	if err != nil {
		return RecomputeResult{}, err
	}
	var gradedScore, gradedTotal float64
	for _, es := range essays {
		if es.Status != hierarchy.EssayGraded {
			continue
		}
		max := es.MaxScore
		if max == 0 {
			max = defaultEssayMaxScore
		}
		gradedScore += es.Score
		gradedTotal += max
	}

	autoPercent := percentOf(attempt.AutoScore, attempt.AutoTotal)
	combined := percentOf(attempt.AutoScore+gradedScore, attempt.AutoTotal+gradedTotal)
	gradedPercent := percentOf(gradedScore, gradedTotal)

	if err := e.guard.MergeWrite(ctx, e.store, hierarchy.CollAttempts, attempt.ID, docstore.Fields{
		"autoPercent":   autoPercent,
		"gradedScore":   gradedScore,
		"gradedTotal":   gradedTotal,
		"gradedPercent": gradedPercent,
		"percent":       combined,
	}); err != nil {
		return RecomputeResult{}, err
	}

	if err := e.recomputeSummary(ctx, attempt.UserID, attempt.QuizID); err != nil {
		return RecomputeResult{}, err
	}
	if err := e.recomputeQuizAverage(ctx, attempt.UserID); err != nil {
		return RecomputeResult{}, err
	}

	return RecomputeResult{
		AttemptID:     attempt.ID,
		Percent:       combined,
		GradedPercent: gradedPercent,
		AutoPercent:   autoPercent,
	}, nil
}

// recomputeSummary re-scans all sibling attempts and rewrites the
// per-(user, quiz) roll-up.
func (e *Engine) recomputeSummary(ctx context.Context, userID, quizID string) error {
	attempts, err := e.hier.SiblingAttempts(ctx, userID, quizID)
	if err != nil {
		return err
	}
	var bestPercent, bestGraded *int
	for _, a := range attempts {
		p := a.AutoPercent
		if a.Percent != nil {
			p = *a.Percent
		}
		if bestPercent == nil || p > *bestPercent {
			v := p
			bestPercent = &v
		}
		if a.GradedPercent != nil && (bestGraded == nil || *a.GradedPercent > *bestGraded) {
			v := *a.GradedPercent
			bestGraded = &v
		}
	}
	return e.guard.MergeWrite(ctx, e.store, hierarchy.CollQuizSummaries, hierarchy.SummaryID(userID, quizID), docstore.Fields{
		"userId":            userID,
		"quizId":            quizID,
		"attemptsUsed":      len(attempts),
		"bestPercent":       intPtrValue(bestPercent),
		"bestGradedPercent": intPtrValue(bestGraded),
		"updatedAt":         docstore.ServerTimestamp,
	})
}

// recomputeQuizAverage re-scans all of the user's quiz summaries and
// rewrites averageQuizScore. Per summary the score is bestGradedPercent,
// else bestPercent, else lastScorePercent; summaries carrying none are
// skipped.
func (e *Engine) recomputeQuizAverage(ctx context.Context, userID string) error {
	summaries, err := e.hier.QuizSummariesByUser(ctx, userID)
	if err != nil {
		return err
	}
	var scores []int
	for _, s := range summaries {
		switch {
		case s.BestGradedPercent != nil:
			scores = append(scores, *s.BestGradedPercent)
		case s.BestPercent != nil:
			scores = append(scores, *s.BestPercent)
		case s.LastScorePercent != nil:
			scores = append(scores, *s.LastScorePercent)
		}
	}
	return e.guard.MergeWrite(ctx, e.store, hierarchy.CollUsers, userID, docstore.Fields{
		"averageQuizScore": roundMean(scores),
	})
}

// WriteSubmissionGrade is the assignment-side grading trigger: merge the
// grade onto the submission, mirror it into the per-(user, assignment)
// grade doc, then re-derive the user's assignment average from all
// mirrors. Refuses with ErrAncestorArchived when the assignment, its
// module, or its course is archived.
func (e *Engine) WriteSubmissionGrade(ctx context.Context, assignmentID, studentID string, grade *float64, feedback, gradedBy string) error {
	if err := e.hier.CheckAssignmentActive(ctx, assignmentID); err != nil {
		return err
	}
	subFields := docstore.Fields{
		"assignmentId": assignmentID,
		"studentId":    studentID,
		"graded":       true,
		"feedback":     feedback,
	}
	if grade != nil {
		subFields["grade"] = *grade
	}
	if err := e.store.Set(ctx, hierarchy.CollSubmissions, hierarchy.SubmissionID(assignmentID, studentID), subFields, true); err != nil {
		return err
	}

	mirror := docstore.Fields{
		"userId":       studentID,
		"assignmentId": assignmentID,
		"feedback":     feedback,
		"gradedBy":     gradedBy,
		"gradedAt":     docstore.ServerTimestamp,
	}
	if grade != nil {
		mirror["grade"] = *grade
	} else {
		mirror["grade"] = nil
	}
	if err := e.store.Set(ctx, hierarchy.CollAssignmentGrades, hierarchy.GradeID(studentID, assignmentID), mirror, true); err != nil {
		return err
	}
	return e.RecomputeAssignmentGradeAverage(ctx, studentID)
}

// RecomputeAssignmentGradeAverage re-scans all of the user's
// assignment-grade mirrors and rewrites the count and average. Only
// numeric grades count.
func (e *Engine) RecomputeAssignmentGradeAverage(ctx context.Context, userID string) error {
	start := time.Now()
	err := e.recomputeAssignmentAverage(ctx, userID)
	if errors.Is(err, ErrRollupConflict) {
		monitoring.GuardConflicts.Inc()
		err = e.recomputeAssignmentAverage(ctx, userID)
	}
	monitoring.RecomputeDuration.WithLabelValues("assignment_average").Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.RecomputeOps.WithLabelValues("assignment_average", "error").Inc()
		return err
	}
	monitoring.RecomputeOps.WithLabelValues("assignment_average", "ok").Inc()
	return nil
}

func (e *Engine) recomputeAssignmentAverage(ctx context.Context, userID string) error {
	grades, err := e.hier.AssignmentGradesByUser(ctx, userID)
	if err != nil {
		return err
	}
	count := 0
	sum := 0.0
	for _, g := range grades {
		if g.Grade == nil {
			continue
		}
		count++
		sum += *g.Grade
	}
	avg := 0
	if count > 0 {
		avg = roundFloat(sum / float64(count))
	}
	return e.guard.MergeWrite(ctx, e.store, hierarchy.CollUsers, userID, docstore.Fields{
		"averageAssignmentGrade": avg,
		"gradedAssignmentsCount": count,
	})
}

func intPtrValue(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
