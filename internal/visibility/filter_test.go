package visibility

import (
	"context"
	"errors"
	"testing"

	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
)

func seed(t *testing.T, store docstore.Store, coll, id string, v interface{}) {
	t.Helper()
	fields, err := docstore.FieldsOf(v)
	if err != nil {
		t.Fatalf("encode %s/%s: %v", coll, id, err)
	}
	if err := store.Set(context.Background(), coll, id, fields, false); err != nil {
		t.Fatalf("seed %s/%s: %v", coll, id, err)
	}
}

func newFixture(t *testing.T) (docstore.Store, *Filter) {
	t.Helper()
	store := docstore.NewMemoryStore()
	return store, NewFilter(hierarchy.NewRepo(store), nil)
}

func TestVisibleAssignments_AncestorAndTargetingRules(t *testing.T) {
	ctx := context.Background()
	store, filt := newFixture(t)

	seed(t, store, hierarchy.CollUsers, "stu", hierarchy.User{
		Name: "Mia", Role: "student", ClassIDs: []string{"cls-active", "cls-archived"},
	})
	seed(t, store, hierarchy.CollClasses, "cls-active", hierarchy.Class{Name: "7A"})
	seed(t, store, hierarchy.CollClasses, "cls-archived", hierarchy.Class{Name: "7B", Archived: true})

	seed(t, store, hierarchy.CollCourses, "crs-live", hierarchy.Course{
		Title: "Biology", AssignedClasses: []string{"cls-active"},
	})
	seed(t, store, hierarchy.CollCourses, "crs-dead", hierarchy.Course{
		Title: "Latin", Archived: true, AssignedClasses: []string{"cls-active"},
	})

	seed(t, store, hierarchy.CollModules, "mod-live", hierarchy.Module{CourseID: "crs-live", ModuleNumber: 1, Title: "Cells"})
	seed(t, store, hierarchy.CollModules, "mod-dead", hierarchy.Module{CourseID: "crs-live", ModuleNumber: 2, Title: "Plants", Archived: true})

	seed(t, store, hierarchy.CollAssignments, "a-module", hierarchy.Assignment{
		CourseID: "crs-live", ModuleID: "mod-live", Title: "Cell walls", PublishAt: 300,
	})
	seed(t, store, hierarchy.CollAssignments, "a-course", hierarchy.Assignment{
		CourseID: "crs-live", Title: "Intro survey", PublishAt: 100,
	})
	seed(t, store, hierarchy.CollAssignments, "a-targeted", hierarchy.Assignment{
		CourseID: "crs-live", ModuleID: "mod-live", ClassIDs: []string{"cls-active"}, Title: "Lab report", PublishAt: 200,
	})
	// hidden: module archived
	seed(t, store, hierarchy.CollAssignments, "a-dead-module", hierarchy.Assignment{
		CourseID: "crs-live", ModuleID: "mod-dead", Title: "Leaves", PublishAt: 400,
	})
	// hidden: targets only the archived class
	seed(t, store, hierarchy.CollAssignments, "a-dead-class", hierarchy.Assignment{
		CourseID: "crs-live", ClassIDs: []string{"cls-archived"}, Title: "Extra credit", PublishAt: 500,
	})
	// hidden: the assignment itself is archived
	seed(t, store, hierarchy.CollAssignments, "a-archived", hierarchy.Assignment{
		CourseID: "crs-live", Archived: true, Title: "Old homework", PublishAt: 600,
	})
	// hidden: module reference points nowhere
	seed(t, store, hierarchy.CollAssignments, "a-orphan", hierarchy.Assignment{
		CourseID: "crs-live", ModuleID: "mod-gone", Title: "Orphan", PublishAt: 700,
	})
	// hidden: course archived, even though the assignment is active
	seed(t, store, hierarchy.CollAssignments, "a-dead-course", hierarchy.Assignment{
		CourseID: "crs-dead", Title: "Declensions", PublishAt: 800,
	})

	got, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}

	// publishAt descending
	want := []string{"a-module", "a-targeted", "a-course"}
	if len(got) != len(want) {
		t.Fatalf("visible set: got %d assignments, want %d: %+v", len(got), len(want), got)
	}
	for i, id := range want {
		if got[i].Assignment.ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Assignment.ID, id)
		}
	}
}

func TestVisibleAssignments_TargetingMismatchAcrossClasses(t *testing.T) {
	ctx := context.Background()
	store, filt := newFixture(t)

	seed(t, store, hierarchy.CollUsers, "stu", hierarchy.User{Role: "student", ClassIDs: []string{"c3"}})
	seed(t, store, hierarchy.CollClasses, "c3", hierarchy.Class{Name: "7C"})
	seed(t, store, hierarchy.CollCourses, "crs", hierarchy.Course{
		Title: "Maths", AssignedClasses: []string{"c1", "c2", "c3"},
	})
	// targets two classes the student is not in
	seed(t, store, hierarchy.CollAssignments, "a1", hierarchy.Assignment{
		CourseID: "crs", ClassIDs: []string{"c1", "c2"}, Title: "Fractions", PublishAt: 10,
	})

	got, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("targeted assignment leaked to a non-targeted class: %+v", got)
	}
}

func TestVisibleAssignments_NoActiveClasses(t *testing.T) {
	ctx := context.Background()
	store, filt := newFixture(t)

	seed(t, store, hierarchy.CollUsers, "stu", hierarchy.User{Role: "student", ClassIDs: []string{"gone"}})
	seed(t, store, hierarchy.CollClasses, "gone", hierarchy.Class{Archived: true})

	got, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %+v", got)
	}
}

func TestVisibleAssignments_StudentNotFound(t *testing.T) {
	_, filt := newFixture(t)
	if _, err := filt.VisibleAssignmentsForStudent(context.Background(), "ghost"); !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestVisibleAssignments_SubmissionAttach(t *testing.T) {
	ctx := context.Background()
	store, filt := newFixture(t)

	seed(t, store, hierarchy.CollUsers, "stu", hierarchy.User{Role: "student", ClassIDs: []string{"cls"}})
	seed(t, store, hierarchy.CollClasses, "cls", hierarchy.Class{Name: "7A"})
	seed(t, store, hierarchy.CollCourses, "crs", hierarchy.Course{Title: "Biology", AssignedClasses: []string{"cls"}})
	seed(t, store, hierarchy.CollAssignments, "a-done", hierarchy.Assignment{CourseID: "crs", Title: "Done", PublishAt: 2})
	seed(t, store, hierarchy.CollAssignments, "a-open", hierarchy.Assignment{CourseID: "crs", Title: "Open", PublishAt: 1})

	grade := 8.5
	seed(t, store, hierarchy.CollSubmissions, hierarchy.SubmissionID("a-done", "stu"), hierarchy.Submission{
		AssignmentID: "a-done", StudentID: "stu", Grade: &grade, Graded: true, SubmittedAt: 99,
	})

	got, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[0].Submission == nil {
		t.Fatalf("submission not attached to a-done")
	}
	if got[0].Submission.Grade == nil || *got[0].Submission.Grade != 8.5 {
		t.Fatalf("submission grade wrong: %+v", got[0].Submission)
	}
	if got[1].Submission != nil {
		t.Fatalf("phantom submission attached to a-open: %+v", got[1].Submission)
	}
}
