package forms

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

// callLog records the order in which collaborators were reached.
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	l.calls = append(l.calls, call)
}

type fakeRows struct {
	log       *callLog
	insertErr error
	updateErr error
	inserted  []records.Fields
	updated   map[records.RecordID]records.Fields
	nextID    records.RecordID
}

func (f *fakeRows) List(context.Context, records.Table) ([]records.Record, error) {
	f.log.add("list")
	return nil, nil
}

func (f *fakeRows) Insert(_ context.Context, fields records.Fields) (records.RecordID, error) {
	f.log.add("insert")
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, fields)
	if f.nextID == "" {
		return "new-id", nil
	}
	return f.nextID, nil
}

func (f *fakeRows) Update(_ context.Context, id records.RecordID, fields records.Fields) error {
	f.log.add("update")
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updated == nil {
		f.updated = map[records.RecordID]records.Fields{}
	}
	f.updated[id] = fields
	return nil
}

func (f *fakeRows) Delete(context.Context, records.Table, records.RecordID) error {
	f.log.add("delete")
	return nil
}

type fakeBlobs struct {
	log       *callLog
	uploadErr error
	url       string
	uploads   []string
}

func (f *fakeBlobs) Upload(_ context.Context, data []byte, suggestedName, _ string) (string, error) {
	f.log.add("upload")
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, suggestedName)
	return f.url, nil
}

type deletingBlobs struct {
	fakeBlobs
	deleteErr error
	deleted   []string
}

func (f *deletingBlobs) Delete(_ context.Context, publicURL string) error {
	f.log.add("blob-delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, publicURL)
	return nil
}

type fakeInvalidator struct {
	log         *callLog
	invalidated []records.Table
}

func (f *fakeInvalidator) Invalidate(table records.Table) {
	f.log.add("invalidate")
	f.invalidated = append(f.invalidated, table)
}

type fakeNotifier struct {
	notices []changes.Notice
}

func (f *fakeNotifier) Notify(_ context.Context, notice changes.Notice) {
	f.notices = append(f.notices, notice)
}

var errStoreDown = errors.New("store unavailable")

type testHarness struct {
	log      *callLog
	rows     *fakeRows
	blobs    *fakeBlobs
	cache    *fakeInvalidator
	notifier *fakeNotifier
}

func newHarness() *testHarness {
	log := &callLog{}
	return &testHarness{
		log:      log,
		rows:     &fakeRows{log: log},
		blobs:    &fakeBlobs{log: log, url: "https://cdn.example.com/project-images/u.png"},
		cache:    &fakeInvalidator{log: log},
		notifier: &fakeNotifier{},
	}
}

func (h *testHarness) deps() Dependencies {
	return Dependencies{Rows: h.rows, Blobs: h.blobs, Cache: h.cache, Notifier: h.notifier}
}

func pngUpload(name string) Upload {
	return Upload{Name: name, ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}
