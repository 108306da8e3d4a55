package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/openclass/openclass-lms/internal/auth"
	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/internal/rbac"
	"github.com/openclass/openclass-lms/internal/visibility"
)

func listRequest(t *testing.T, studentID, subject, role string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/students/"+studentID+"/assignments", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("studentID", studentID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = auth.WithSubject(ctx, subject)
	ctx = rbac.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func TestStudentAssignmentsHandler_SubjectBinding(t *testing.T) {
	store := docstore.NewMemoryStore()
	fields, err := docstore.FieldsOf(hierarchy.User{Role: "student", ClassIDs: []string{}})
	if err != nil {
		t.Fatalf("encode user: %v", err)
	}
	if err := store.Set(context.Background(), hierarchy.CollUsers, "stu-1", fields, false); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	handler := StudentAssignmentsHandler(visibility.NewFilter(hierarchy.NewRepo(store), nil))

	cases := []struct {
		name       string
		studentID  string
		subject    string
		role       string
		wantStatus int
	}{
		{"student reads own list", "stu-1", "stu-1", "student", http.StatusOK},
		{"student reads another student", "stu-1", "stu-2", "student", http.StatusForbidden},
		{"teacher reads any student", "stu-1", "teacher-1", "teacher", http.StatusOK},
		{"admin reads any student", "stu-1", "admin-1", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, listRequest(t, tc.studentID, tc.subject, tc.role))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (body %q)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}
