package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/clubsite/internal/blobs"
	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
)

var (
	errMissingRows  = errors.New("forms: row store is required")
	errMissingBlobs = errors.New("forms: blob store is required")
	errMissingCache = errors.New("forms: cache invalidator is required")
)

// UploadError reports a failed blob upload. The row write was never attempted.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("forms: image upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed insert, update or delete. The cache is untouched.
type WriteError struct {
	Table records.Table
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("forms: %s write failed: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Dependencies are the collaborators of the save workflow.
type Dependencies struct {
	Rows     records.Rows
	Blobs    blobs.Store
	Cache    cache.Invalidator
	Notifier changes.Notifier
	Logger   *zap.Logger
}

func (d Dependencies) validate() error {
	if d.Rows == nil {
		return errMissingRows
	}
	if d.Blobs == nil {
		return errMissingBlobs
	}
	if d.Cache == nil {
		return errMissingCache
	}
	return nil
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Outcome is the exhaustive result of SaveRecord: Saved, UploadFailed or WriteFailed.
type Outcome interface {
	isOutcome()
}

// Saved reports a committed insert or update.
type Saved struct {
	ID       records.RecordID
	ImageURL string
	Kind     changes.Kind
}

// UploadFailed reports that the blob upload failed and nothing was written.
type UploadFailed struct {
	Err *UploadError
}

// WriteFailed reports that the row write failed. OrphanedBlob is the URL of a
// blob uploaded for this submit that could not be removed afterwards.
type WriteFailed struct {
	Err          *WriteError
	OrphanedBlob string
}

func (Saved) isOutcome()        {}
func (UploadFailed) isOutcome() {}
func (WriteFailed) isOutcome()  {}

// OutcomeError returns the error carried by a failed outcome, or nil.
func OutcomeError(outcome Outcome) error {
	switch result := outcome.(type) {
	case UploadFailed:
		return result.Err
	case WriteFailed:
		return result.Err
	default:
		return nil
	}
}

// SaveRecord uploads the pending file, if any, and then writes the row. The write
// never starts before the upload has returned a URL. On success the table's
// cache entry is invalidated.
func SaveRecord(ctx context.Context, deps Dependencies, table records.Table, mode Mode, pending PendingEdit) Outcome {
	logger := deps.logger().With(zap.String("table", table.String()))

	imageURL := ""
	if edit, ok := mode.(EditMode); ok {
		imageURL = edit.Original.ImageURL
	}

	uploaded := ""
	if pending.Upload != nil && len(pending.Upload.Data) > 0 {
		publicURL, err := deps.Blobs.Upload(ctx, pending.Upload.Data, pending.Upload.Name, pending.Upload.ContentType)
		if err != nil {
			logger.Warn("image upload failed", zap.Error(err))
			return UploadFailed{Err: &UploadError{Err: err}}
		}
		imageURL = publicURL
		uploaded = publicURL
	}

	fields := pending.fields(table, imageURL)

	var (
		id   records.RecordID
		kind changes.Kind
		err  error
	)
	switch current := mode.(type) {
	case EditMode:
		id = current.Original.ID
		kind = changes.KindUpdated
		err = deps.Rows.Update(ctx, id, fields)
	default:
		kind = changes.KindCreated
		id, err = deps.Rows.Insert(ctx, fields)
	}
	if err != nil {
		logger.Warn("record write failed", zap.String("kind", string(kind)), zap.Error(err))
		return WriteFailed{
			Err:          &WriteError{Table: table, Err: err},
			OrphanedBlob: removeOrphan(ctx, deps, uploaded, logger),
		}
	}

	deps.Cache.Invalidate(table)
	if deps.Notifier != nil {
		deps.Notifier.Notify(ctx, changes.Notice{Table: table, Kind: kind, RecordID: id})
	}
	logger.Info("record saved", zap.String("kind", string(kind)), zap.String("record_id", id.String()))
	return Saved{ID: id, ImageURL: imageURL, Kind: kind}
}

// removeOrphan deletes a blob whose row write failed. It returns the URL when
// the blob is left behind.
func removeOrphan(ctx context.Context, deps Dependencies, publicURL string, logger *zap.Logger) string {
	if publicURL == "" {
		return ""
	}
	deleter, ok := deps.Blobs.(blobs.Deleter)
	if !ok {
		logger.Warn("orphaned blob left in store", zap.String("url", publicURL))
		return publicURL
	}
	if err := deleter.Delete(context.WithoutCancel(ctx), publicURL); err != nil {
		logger.Warn("orphaned blob cleanup failed", zap.String("url", publicURL), zap.Error(err))
		return publicURL
	}
	return ""
}
