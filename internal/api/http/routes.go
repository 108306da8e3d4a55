package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/openclass/openclass-lms/internal/archive"
	"github.com/openclass/openclass-lms/internal/grading"
	"github.com/openclass/openclass-lms/internal/rbac"
	"github.com/openclass/openclass-lms/internal/visibility"
)

// Mount wires the core operations onto an authenticated router group.
func Mount(r chi.Router, arch *archive.Service, filt *visibility.Filter, eng *grading.Engine) {
	r.With(rbac.Require("module:archive")).
		Patch("/modules/{moduleID}/archived", ArchiveModuleHandler(arch))
	r.With(rbac.Require("module:delete")).
		Delete("/modules/{moduleID}", DeleteModuleHandler(arch))
	r.With(rbac.Require("course:archive")).
		Patch("/courses/{courseID}/archived", ArchiveCourseHandler(arch))

	r.With(rbac.Require("assignment:list")).
		Get("/students/{studentID}/assignments", StudentAssignmentsHandler(filt))

	r.With(rbac.Require("grade:write")).
		Post("/essays/{essayID}/grade", GradeEssayHandler(eng))
	r.With(rbac.Require("grade:write")).
		Post("/attempts/{attemptID}/recompute", RecomputeAttemptHandler(eng))
	r.With(rbac.Require("grade:write")).
		Post("/assignments/{assignmentID}/submissions/{studentID}/grade", SubmissionGradeHandler(eng))
}
