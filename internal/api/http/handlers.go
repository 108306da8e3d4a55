package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openclass/openclass-lms/internal/archive"
	"github.com/openclass/openclass-lms/internal/auth"
	"github.com/openclass/openclass-lms/internal/grading"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/internal/rbac"
	"github.com/openclass/openclass-lms/internal/visibility"
)

// PATCH /modules/{moduleID}/archived
func ArchiveModuleHandler(svc *archive.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := strings.TrimSpace(chi.URLParam(r, "moduleID"))
		if moduleID == "" {
			http.Error(w, "moduleID required", http.StatusBadRequest)
			return
		}
		var req struct {
			Archived bool `json:"archived"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		err := svc.SetModuleArchived(r.Context(), moduleID, req.Archived)
		var partial *archive.PartialCascadeError
		switch {
		case errors.Is(err, archive.ErrModuleNotFound):
			http.Error(w, "module not found", http.StatusNotFound)
			return
		case errors.As(err, &partial):
			// module flag is written, some dependents are not; caller retries
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error":     "cascade incomplete, retry",
				"written":   partial.Written,
				"remaining": partial.Remaining,
			})
			return
		case err != nil:
			http.Error(w, "archive module: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": moduleID, "archived": req.Archived})
	}
}

// DELETE /modules/{moduleID}
func DeleteModuleHandler(svc *archive.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := strings.TrimSpace(chi.URLParam(r, "moduleID"))
		if moduleID == "" {
			http.Error(w, "moduleID required", http.StatusBadRequest)
			return
		}
		if err := svc.DeleteModule(r.Context(), moduleID); err != nil {
			if errors.Is(err, archive.ErrModuleNotFound) {
				http.Error(w, "module not found", http.StatusNotFound)
				return
			}
			http.Error(w, "delete module: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PATCH /courses/{courseID}/archived
func ArchiveCourseHandler(svc *archive.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		if courseID == "" {
			http.Error(w, "courseID required", http.StatusBadRequest)
			return
		}
		var req struct {
			Archived bool `json:"archived"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.SetCourseArchived(r.Context(), courseID, req.Archived); err != nil {
			if errors.Is(err, archive.ErrCourseNotFound) {
				http.Error(w, "course not found", http.StatusNotFound)
				return
			}
			http.Error(w, "archive course: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": courseID, "archived": req.Archived})
	}
}

// GET /students/{studentID}/assignments
func StudentAssignmentsHandler(f *visibility.Filter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := strings.TrimSpace(chi.URLParam(r, "studentID"))
		if studentID == "" {
			http.Error(w, "studentID required", http.StatusBadRequest)
			return
		}
		// students only read their own list; teachers and admins may
		// read any student's
		if rbac.RoleFromContext(r.Context()) == "student" &&
			auth.SubjectFromContext(r.Context()) != studentID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		out, err := f.VisibleAssignmentsForStudent(r.Context(), studentID)
		if err != nil {
			if errors.Is(err, visibility.ErrStudentNotFound) {
				http.Error(w, "student not found", http.StatusNotFound)
				return
			}
			http.Error(w, "list assignments: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

type gradeEssayReq struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score,omitempty"`
}

// POST /essays/{essayID}/grade
func GradeEssayHandler(e *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		essayID := strings.TrimSpace(chi.URLParam(r, "essayID"))
		if essayID == "" {
			http.Error(w, "essayID required", http.StatusBadRequest)
			return
		}
		var req gradeEssayReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		gradedBy := auth.SubjectFromContext(r.Context())
		res, err := e.GradeEssay(r.Context(), essayID, req.Score, req.MaxScore, gradedBy)
		if err != nil {
			switch {
			case errors.Is(err, grading.ErrEssayNotFound):
				http.Error(w, "essay not found", http.StatusNotFound)
			case errors.Is(err, hierarchy.ErrAncestorArchived):
				http.Error(w, "quiz is archived: "+err.Error(), http.StatusConflict)
			default:
				http.Error(w, "grade essay: "+err.Error(), http.StatusInternalServerError)
			}
			return
		}
		writeRecomputeResult(w, res)
	}
}

// POST /attempts/{attemptID}/recompute
func RecomputeAttemptHandler(e *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if attemptID == "" {
			http.Error(w, "attemptID required", http.StatusBadRequest)
			return
		}
		res, err := e.RecomputeAttempt(r.Context(), hierarchy.AttemptPath(attemptID))
		if err != nil {
			http.Error(w, "recompute: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeRecomputeResult(w, res)
	}
}

type submissionGradeReq struct {
	Grade    *float64 `json:"grade"`
	Feedback string   `json:"feedback,omitempty"`
}

// POST /assignments/{assignmentID}/submissions/{studentID}/grade
func SubmissionGradeHandler(e *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID := strings.TrimSpace(chi.URLParam(r, "assignmentID"))
		studentID := strings.TrimSpace(chi.URLParam(r, "studentID"))
		if assignmentID == "" || studentID == "" {
			http.Error(w, "assignmentID and studentID required", http.StatusBadRequest)
			return
		}
		var req submissionGradeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		gradedBy := auth.SubjectFromContext(r.Context())
		if err := e.WriteSubmissionGrade(r.Context(), assignmentID, studentID, req.Grade, req.Feedback, gradedBy); err != nil {
			if errors.Is(err, hierarchy.ErrAncestorArchived) {
				http.Error(w, "assignment is archived: "+err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "grade submission: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeRecomputeResult(w http.ResponseWriter, res grading.RecomputeResult) {
	body := map[string]interface{}{"result": res}
	if res.Skipped {
		body["warning"] = "grade saved, but summary could not be updated: " + res.Reason
	}
	_ = json.NewEncoder(w).Encode(body)
}
