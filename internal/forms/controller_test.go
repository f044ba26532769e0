package forms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

func newProjectController(t *testing.T, harness *testHarness) *Controller {
	t.Helper()
	controller, err := NewController(records.TableProjects, harness.deps())
	if err != nil {
		t.Fatalf("failed to build controller: %v", err)
	}
	return controller
}

func TestCreateProjectUploadsBeforeInsertAndInvalidates(t *testing.T) {
	harness := newHarness()
	controller := newProjectController(t, harness)

	if err := controller.OpenCreate(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := controller.Edit(func(pending *PendingEdit) {
		pending.Title = "Demo"
		pending.GithubLink = "https://github.com/x/y"
	}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if err := controller.AttachFile(pngUpload("a.png")); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if !strings.HasPrefix(controller.Pending().Preview, "data:image/png;base64,") {
		t.Fatalf("expected data url preview, got %q", controller.Pending().Preview)
	}

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	saved, ok := outcome.(Saved)
	if !ok {
		t.Fatalf("expected saved outcome, got %#v", outcome)
	}
	if saved.ImageURL != harness.blobs.url || saved.Kind != changes.KindCreated {
		t.Fatalf("unexpected saved outcome %#v", saved)
	}

	want := []string{"upload", "insert", "invalidate"}
	if strings.Join(harness.log.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected call order %v", harness.log.calls)
	}
	inserted := harness.rows.inserted[0].(records.ProjectFields)
	if inserted.Title != "Demo" || inserted.GithubLink != "https://github.com/x/y" || inserted.ImageURL != harness.blobs.url {
		t.Fatalf("unexpected inserted fields %#v", inserted)
	}
	if harness.cache.invalidated[0] != records.TableProjects {
		t.Fatalf("expected projects invalidation, got %v", harness.cache.invalidated)
	}
	if len(harness.notifier.notices) != 1 || harness.notifier.notices[0].RecordID != "new-id" {
		t.Fatalf("unexpected notices %#v", harness.notifier.notices)
	}
	if controller.State() != StateClosed {
		t.Fatalf("expected closed after success, got %s", controller.State())
	}
}

func TestSubmitWithEmptyTitleMakesNoCalls(t *testing.T) {
	harness := newHarness()
	controller := newProjectController(t, harness)
	if err := controller.OpenCreate(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_ = controller.Edit(func(pending *PendingEdit) {
		pending.Title = "   "
		pending.GithubLink = "https://github.com/x/y"
	})
	_ = controller.AttachFile(pngUpload("a.png"))

	outcome, err := controller.Submit(context.Background())
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected no outcome, got %#v", outcome)
	}
	if validationErr.Message(FieldTitle) == "" {
		t.Fatalf("expected title message, got %v", validationErr.Fields)
	}
	if len(harness.log.calls) != 0 {
		t.Fatalf("expected no store calls, got %v", harness.log.calls)
	}
	if controller.State() != StateOpen {
		t.Fatalf("expected form to stay open, got %s", controller.State())
	}
}

func TestCreateRequiresImageAndDetailField(t *testing.T) {
	harness := newHarness()
	controller := newProjectController(t, harness)
	_ = controller.OpenCreate()
	_ = controller.Edit(func(pending *PendingEdit) { pending.Title = "Demo" })

	_, err := controller.Submit(context.Background())
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if validationErr.Message(FieldImage) == "" || validationErr.Message(FieldGithubLink) == "" {
		t.Fatalf("expected image and github link messages, got %v", validationErr.Fields)
	}
}

func TestUploadFailureSkipsInsertAndKeepsPendingEdit(t *testing.T) {
	harness := newHarness()
	harness.blobs.uploadErr = errStoreDown
	controller := newProjectController(t, harness)
	_ = controller.OpenCreate()
	_ = controller.Edit(func(pending *PendingEdit) {
		pending.Title = "Demo"
		pending.GithubLink = "https://github.com/x/y"
	})
	_ = controller.AttachFile(pngUpload("a.png"))

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed, ok := outcome.(UploadFailed)
	if !ok {
		t.Fatalf("expected upload failure, got %#v", outcome)
	}
	if !errors.Is(failed.Err, errStoreDown) {
		t.Fatalf("expected wrapped store error, got %v", failed.Err)
	}
	if strings.Join(harness.log.calls, ",") != "upload" {
		t.Fatalf("insert must not follow a failed upload, calls %v", harness.log.calls)
	}
	if controller.State() != StateOpen || controller.Pending().Title != "Demo" || controller.Pending().Upload == nil {
		t.Fatalf("expected open form with retained pending edit, got %s %#v", controller.State(), controller.Pending())
	}
	var uploadErr *UploadError
	if !errors.As(controller.Err(), &uploadErr) {
		t.Fatalf("expected upload error surfaced, got %v", controller.Err())
	}
}

func TestEditWithoutNewFileKeepsImageURL(t *testing.T) {
	harness := newHarness()
	controller, err := NewController(records.TableEvents, harness.deps())
	if err != nil {
		t.Fatalf("failed to build controller: %v", err)
	}
	original := records.Record{
		Table:     records.TableEvents,
		ID:        "42",
		Title:     "Hackathon",
		ImageURL:  "old.png",
		EventDate: "2025-04-20",
	}
	if err := controller.OpenEdit(original); err != nil {
		t.Fatalf("open edit failed: %v", err)
	}
	if controller.Pending().Preview != "old.png" {
		t.Fatalf("expected existing image as preview, got %q", controller.Pending().Preview)
	}
	_ = controller.Edit(func(pending *PendingEdit) { pending.Title = "Hackathon 2025" })

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, ok := outcome.(Saved); !ok {
		t.Fatalf("expected saved outcome, got %#v", outcome)
	}
	if strings.Join(harness.log.calls, ",") != "update,invalidate" {
		t.Fatalf("unexpected calls %v", harness.log.calls)
	}
	updated := harness.rows.updated["42"].(records.EventFields)
	if updated.ImageURL != "old.png" || updated.Title != "Hackathon 2025" || updated.EventDate != "2025-04-20" {
		t.Fatalf("unexpected update fields %#v", updated)
	}
}

func TestEditWithNewFileReplacesImageURL(t *testing.T) {
	harness := newHarness()
	controller := newProjectController(t, harness)
	original := records.Record{Table: records.TableProjects, ID: "p1", Title: "Demo", ImageURL: "old.png", GithubLink: "https://github.com/x/y"}
	_ = controller.OpenEdit(original)
	_ = controller.AttachFile(pngUpload("new.png"))

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	saved := outcome.(Saved)
	if saved.ImageURL != harness.blobs.url || saved.Kind != changes.KindUpdated {
		t.Fatalf("unexpected outcome %#v", saved)
	}
	if harness.rows.updated["p1"].(records.ProjectFields).ImageURL != harness.blobs.url {
		t.Fatalf("expected new image url to be written")
	}
}

func TestWriteFailureLeavesCacheAndCleansUpBlob(t *testing.T) {
	log := &callLog{}
	blobStore := &deletingBlobs{fakeBlobs: fakeBlobs{log: log, url: "/blobs/project-images/u.png"}}
	rows := &fakeRows{log: log, insertErr: errStoreDown}
	invalidator := &fakeInvalidator{log: log}
	controller, err := NewController(records.TableProjects, Dependencies{Rows: rows, Blobs: blobStore, Cache: invalidator})
	if err != nil {
		t.Fatalf("failed to build controller: %v", err)
	}
	_ = controller.OpenCreate()
	_ = controller.Edit(func(pending *PendingEdit) {
		pending.Title = "Demo"
		pending.GithubLink = "https://github.com/x/y"
	})
	_ = controller.AttachFile(pngUpload("a.png"))

	outcome, err := controller.Submit(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failed, ok := outcome.(WriteFailed)
	if !ok {
		t.Fatalf("expected write failure, got %#v", outcome)
	}
	if failed.OrphanedBlob != "" {
		t.Fatalf("expected blob cleanup, orphan %q", failed.OrphanedBlob)
	}
	if strings.Join(log.calls, ",") != "upload,insert,blob-delete" {
		t.Fatalf("unexpected calls %v", log.calls)
	}
	if len(invalidator.invalidated) != 0 {
		t.Fatalf("cache must not be invalidated on failure")
	}
	if controller.State() != StateOpen {
		t.Fatalf("expected form to reopen, got %s", controller.State())
	}
}

func TestWriteFailureReportsOrphanWhenStoreCannotDelete(t *testing.T) {
	harness := newHarness()
	harness.rows.insertErr = errStoreDown
	outcome := SaveRecord(context.Background(), harness.deps(), records.TableProjects, CreateMode{}, PendingEdit{
		Title:      "Demo",
		GithubLink: "https://github.com/x/y",
		Upload:     &Upload{Name: "a.png", ContentType: "image/png", Data: []byte("x")},
	})
	failed, ok := outcome.(WriteFailed)
	if !ok {
		t.Fatalf("expected write failure, got %#v", outcome)
	}
	if failed.OrphanedBlob != harness.blobs.url {
		t.Fatalf("expected orphan to be reported, got %q", failed.OrphanedBlob)
	}
	var writeErr *WriteError
	if !errors.As(OutcomeError(outcome), &writeErr) || writeErr.Table != records.TableProjects {
		t.Fatalf("expected write error for projects, got %v", OutcomeError(outcome))
	}
}

func TestControllerRejectsSecondOpenAndCancelClears(t *testing.T) {
	harness := newHarness()
	controller := newProjectController(t, harness)
	if err := controller.OpenCreate(); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := controller.OpenEdit(records.Record{Table: records.TableProjects, ID: "p1"}); !errors.Is(err, ErrFormOpen) {
		t.Fatalf("expected form open error, got %v", err)
	}
	_ = controller.Edit(func(pending *PendingEdit) { pending.Title = "Draft" })
	if err := controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if controller.State() != StateClosed || controller.Pending().Title != "" {
		t.Fatalf("expected cleared closed form, got %s %#v", controller.State(), controller.Pending())
	}
	if _, err := controller.Submit(context.Background()); !errors.Is(err, ErrFormClosed) {
		t.Fatalf("expected closed form error, got %v", err)
	}
}

func TestOpenEditRejectsForeignRecord(t *testing.T) {
	controller := newProjectController(t, newHarness())
	err := controller.OpenEdit(records.Record{Table: records.TableEvents, ID: "e1"})
	if !errors.Is(err, ErrTableMismatch) {
		t.Fatalf("expected table mismatch, got %v", err)
	}
}

func TestNewControllerValidatesDependencies(t *testing.T) {
	if _, err := NewController(records.TableProjects, Dependencies{}); !errors.Is(err, errMissingRows) {
		t.Fatalf("expected missing rows error, got %v", err)
	}
	if _, err := NewController(records.TableContactSubmissions, newHarness().deps()); !errors.Is(err, records.ErrTableNotListable) {
		t.Fatalf("expected write-only table rejection, got %v", err)
	}
}
