package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/internal/visibility"
)

// batchRecorder observes cascade batches and can fail the nth one.
type batchRecorder struct {
	docstore.Store
	sizes  []int
	failOn int // 1-based batch index, 0 = never
}

func (b *batchRecorder) BatchWrite(ctx context.Context, ops []docstore.WriteOp) error {
	b.sizes = append(b.sizes, len(ops))
	if b.failOn > 0 && len(b.sizes) == b.failOn {
		return errors.New("batch rejected")
	}
	return b.Store.BatchWrite(ctx, ops)
}

func seedTree(t *testing.T, store docstore.Store, moduleID string, assignments, quizzes int) {
	t.Helper()
	mustSet(t, store, hierarchy.CollCourses, "crs-1", docstore.Fields{
		"title": "Biology", "archived": false, "assignedClasses": []string{"cls-1"},
	})
	mustSet(t, store, hierarchy.CollModules, moduleID, docstore.Fields{
		"courseId": "crs-1", "moduleNumber": 1, "title": "Cells", "archived": false,
	})
	for i := 0; i < assignments; i++ {
		mustSet(t, store, hierarchy.CollAssignments, fmt.Sprintf("as-%d", i), docstore.Fields{
			"courseId": "crs-1", "moduleId": moduleID, "title": fmt.Sprintf("Homework %d", i),
			"archived": false, "publishAt": int64(1000 + i), "classIds": []string{},
		})
	}
	for i := 0; i < quizzes; i++ {
		mustSet(t, store, hierarchy.CollQuizzes, fmt.Sprintf("qz-%d", i), docstore.Fields{
			"courseId": "crs-1", "moduleId": moduleID, "title": fmt.Sprintf("Quiz %d", i),
			"archived": false, "publishAt": int64(2000 + i), "classIds": []string{},
		})
	}
}

func mustSet(t *testing.T, store docstore.Store, coll, id string, f docstore.Fields) {
	t.Helper()
	if err := store.Set(context.Background(), coll, id, f, false); err != nil {
		t.Fatalf("seed %s/%s: %v", coll, id, err)
	}
}

func TestSetModuleArchived_Cascades(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedTree(t, store, "mod-1", 3, 2)
	svc := NewService(store, hierarchy.NewRepo(store), nil)

	if err := svc.SetModuleArchived(ctx, "mod-1", true); err != nil {
		t.Fatalf("archive: %v", err)
	}

	for i := 0; i < 3; i++ {
		doc, err := store.Get(ctx, hierarchy.CollAssignments, fmt.Sprintf("as-%d", i))
		if err != nil {
			t.Fatalf("get assignment: %v", err)
		}
		if doc.Fields["archived"] != true {
			t.Fatalf("assignment as-%d not archived", i)
		}
	}
	for i := 0; i < 2; i++ {
		doc, err := store.Get(ctx, hierarchy.CollQuizzes, fmt.Sprintf("qz-%d", i))
		if err != nil {
			t.Fatalf("get quiz: %v", err)
		}
		if doc.Fields["archived"] != true {
			t.Fatalf("quiz qz-%d not archived", i)
		}
	}

	// course archiving is not cascaded; the course stays active
	course, _ := store.Get(ctx, hierarchy.CollCourses, "crs-1")
	if course.Fields["archived"] != false {
		t.Fatalf("course must not be touched by a module cascade")
	}
}

func TestSetModuleArchived_UnarchiveTouchesOnlyFlag(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedTree(t, store, "mod-1", 1, 0)
	svc := NewService(store, hierarchy.NewRepo(store), nil)

	before, _ := store.Get(ctx, hierarchy.CollAssignments, "as-0")

	if err := svc.SetModuleArchived(ctx, "mod-1", true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.SetModuleArchived(ctx, "mod-1", false); err != nil {
		t.Fatalf("unarchive: %v", err)
	}

	after, _ := store.Get(ctx, hierarchy.CollAssignments, "as-0")
	if after.Fields["archived"] != false {
		t.Fatalf("assignment still archived")
	}
	for k, v := range before.Fields {
		if k == "archived" || k == "updatedAt" {
			continue
		}
		got, ok := after.Fields[k]
		if !ok {
			t.Fatalf("field %q lost across archive round-trip", k)
		}
		switch want := v.(type) {
		case []string:
			gotArr, _ := got.([]string)
			if len(gotArr) != len(want) {
				t.Fatalf("field %q changed: %v != %v", k, got, v)
			}
		default:
			if got != v {
				t.Fatalf("field %q changed: %v != %v", k, got, v)
			}
		}
	}
}

func TestSetModuleArchived_NotFound(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := NewService(store, hierarchy.NewRepo(store), nil)
	if err := svc.SetModuleArchived(context.Background(), "ghost", true); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestSetModuleArchived_ChunksPastBatchCeiling(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	deps := docstore.MaxBatchOps + 20
	seedTree(t, mem, "mod-big", deps, 0)
	rec := &batchRecorder{Store: mem}
	svc := NewService(rec, hierarchy.NewRepo(rec), nil)

	if err := svc.SetModuleArchived(ctx, "mod-big", true); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(rec.sizes) != 2 {
		t.Fatalf("expected 2 batches, got %v", rec.sizes)
	}
	for _, n := range rec.sizes {
		if n > docstore.MaxBatchOps {
			t.Fatalf("batch of %d exceeds the ceiling", n)
		}
	}
	for i := 0; i < deps; i++ {
		doc, err := mem.Get(ctx, hierarchy.CollAssignments, fmt.Sprintf("as-%d", i))
		if err != nil || doc.Fields["archived"] != true {
			t.Fatalf("dependent as-%d missed by chunked cascade", i)
		}
	}
}

func TestSetModuleArchived_PartialCascadeFailure(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	seedTree(t, mem, "mod-big", docstore.MaxBatchOps+20, 0)
	rec := &batchRecorder{Store: mem, failOn: 2}
	svc := NewService(rec, hierarchy.NewRepo(rec), nil)

	err := svc.SetModuleArchived(ctx, "mod-big", true)
	var partial *PartialCascadeError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCascadeError, got %v", err)
	}
	if partial.Written != docstore.MaxBatchOps {
		t.Fatalf("expected %d written, got %d", docstore.MaxBatchOps, partial.Written)
	}
	if partial.Remaining != 20 {
		t.Fatalf("expected 20 remaining, got %d", partial.Remaining)
	}

	// the module's own flag is already written; callers retry the cascade
	mod, _ := mem.Get(ctx, hierarchy.CollModules, "mod-big")
	if mod.Fields["archived"] != true {
		t.Fatalf("module flag must be written before the cascade")
	}
}

func TestSetModuleArchived_HidesDependentsFromStudents(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	hier := hierarchy.NewRepo(store)
	svc := NewService(store, hier, nil)
	filt := visibility.NewFilter(hier, nil)

	seedTree(t, store, "mod-1", 2, 0)
	mustSet(t, store, hierarchy.CollAssignments, "as-direct", docstore.Fields{
		"courseId": "crs-1", "title": "Course survey", "archived": false,
		"publishAt": int64(50), "classIds": []string{},
	})
	mustSet(t, store, hierarchy.CollClasses, "cls-1", docstore.Fields{
		"name": "7A", "archived": false,
	})
	mustSet(t, store, hierarchy.CollUsers, "stu", docstore.Fields{
		"role": "student", "classIds": []string{"cls-1"},
	})

	before, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter before cascade: %v", err)
	}
	if len(before) != 3 {
		t.Fatalf("expected 3 visible assignments before cascade, got %d", len(before))
	}

	if err := svc.SetModuleArchived(ctx, "mod-1", true); err != nil {
		t.Fatalf("archive: %v", err)
	}

	after, err := filt.VisibleAssignmentsForStudent(ctx, "stu")
	if err != nil {
		t.Fatalf("filter after cascade: %v", err)
	}
	// the course stays active, so its direct assignment survives while
	// every module dependent is gone
	if len(after) != 1 || after[0].Assignment.ID != "as-direct" {
		t.Fatalf("cascade not reflected in visibility: %+v", after)
	}
}

func TestDeleteModule_RemovesDependentsAndRenumbers(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedTree(t, store, "mod-1", 2, 1)
	mustSet(t, store, hierarchy.CollModules, "mod-2", docstore.Fields{
		"courseId": "crs-1", "moduleNumber": 2, "title": "Genetics", "archived": false,
	})
	mustSet(t, store, hierarchy.CollModules, "mod-3", docstore.Fields{
		"courseId": "crs-1", "moduleNumber": 3, "title": "Evolution", "archived": false,
	})
	svc := NewService(store, hierarchy.NewRepo(store), nil)

	if err := svc.DeleteModule(ctx, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, hierarchy.CollModules, "mod-1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("module not deleted")
	}
	if _, err := store.Get(ctx, hierarchy.CollAssignments, "as-0"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("dependent assignment not deleted")
	}
	if _, err := store.Get(ctx, hierarchy.CollQuizzes, "qz-0"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("dependent quiz not deleted")
	}

	// survivors renumbered dense from 1
	mods, err := hierarchy.NewRepo(store).ModulesByCourse(ctx, "crs-1")
	if err != nil {
		t.Fatalf("list modules: %v", err)
	}
	if len(mods) != 2 || mods[0].ModuleNumber != 1 || mods[1].ModuleNumber != 2 {
		t.Fatalf("renumbering wrong: %+v", mods)
	}
}

func TestSetCourseArchived_FlagOnly(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	seedTree(t, store, "mod-1", 1, 0)
	svc := NewService(store, hierarchy.NewRepo(store), nil)

	if err := svc.SetCourseArchived(ctx, "crs-1", true); err != nil {
		t.Fatalf("archive course: %v", err)
	}
	course, _ := store.Get(ctx, hierarchy.CollCourses, "crs-1")
	if course.Fields["archived"] != true {
		t.Fatalf("course flag not set")
	}
	// dependents untouched: course archiving is read-time only
	mod, _ := store.Get(ctx, hierarchy.CollModules, "mod-1")
	if mod.Fields["archived"] != false {
		t.Fatalf("course archive must not cascade to modules")
	}
	as, _ := store.Get(ctx, hierarchy.CollAssignments, "as-0")
	if as.Fields["archived"] != false {
		t.Fatalf("course archive must not cascade to assignments")
	}

	if err := svc.SetCourseArchived(ctx, "crs-1", false); err != nil {
		t.Fatalf("unarchive course: %v", err)
	}
	course, _ = store.Get(ctx, hierarchy.CollCourses, "crs-1")
	if course.Fields["archivedAt"] != 0 {
		t.Fatalf("archivedAt not cleared: %v", course.Fields["archivedAt"])
	}
}

func TestSetCourseArchived_NotFound(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := NewService(store, hierarchy.NewRepo(store), nil)
	if err := svc.SetCourseArchived(context.Background(), "ghost", true); !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}
