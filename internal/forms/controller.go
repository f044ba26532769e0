package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

var (
	// ErrFormOpen indicates an attempt to open a second form on the same controller.
	ErrFormOpen = errors.New("forms: a form is already open")
	// ErrFormClosed indicates an operation that needs an open form.
	ErrFormClosed = errors.New("forms: no form is open")
	// ErrSubmitInProgress indicates an operation attempted while submitting.
	ErrSubmitInProgress = errors.New("forms: submit in progress")
	// ErrTableMismatch indicates an edit of a record that belongs to another table.
	ErrTableMismatch = errors.New("forms: record belongs to another table")
)

// Controller drives one gallery form through Closed → Open → Submitting → Closed.
// Create and edit share the controller, so at most one form is open at a time.
// A Controller is not safe for concurrent use.
type Controller struct {
	table   records.Table
	deps    Dependencies
	state   State
	mode    Mode
	pending PendingEdit
	lastErr error
}

// NewController binds a controller to a gallery table.
func NewController(table records.Table, deps Dependencies) (*Controller, error) {
	if !table.Listable() {
		return nil, fmt.Errorf("forms: %w: %s", records.ErrTableNotListable, table)
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &Controller{table: table, deps: deps, state: StateClosed}, nil
}

// Table returns the table the controller writes to.
func (c *Controller) Table() records.Table { return c.table }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Mode returns the open mode, or nil when closed.
func (c *Controller) Mode() Mode { return c.mode }

// Pending returns a copy of the pending edit.
func (c *Controller) Pending() PendingEdit { return c.pending }

// Err returns the error surfaced by the last failed submit.
func (c *Controller) Err() error { return c.lastErr }

// OpenCreate opens an empty form.
func (c *Controller) OpenCreate() error {
	if err := c.ensureClosed(); err != nil {
		return err
	}
	c.mode = CreateMode{}
	c.pending = PendingEdit{}
	c.lastErr = nil
	c.state = StateOpen
	return nil
}

// OpenEdit opens a form prefilled from record; its image is shown as the preview.
func (c *Controller) OpenEdit(record records.Record) error {
	if err := c.ensureClosed(); err != nil {
		return err
	}
	if record.Table != c.table {
		return ErrTableMismatch
	}
	c.mode = EditMode{Original: record}
	c.pending = pendingFromRecord(record)
	c.lastErr = nil
	c.state = StateOpen
	return nil
}

// Edit applies a mutation to the pending edit.
func (c *Controller) Edit(apply func(*PendingEdit)) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	apply(&c.pending)
	return nil
}

// AttachFile selects a local image and previews it.
func (c *Controller) AttachFile(upload Upload) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	attached := upload
	c.pending.Upload = &attached
	c.pending.Preview = previewDataURL(attached)
	return nil
}

// Cancel discards the pending edit. It is refused once submitting has begun.
func (c *Controller) Cancel() error {
	if c.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	c.reset()
	return nil
}

// Submit validates the pending edit and runs SaveRecord. A *ValidationError is
// returned without any call to the stores and the form stays open. Otherwise the
// outcome is returned: Saved closes the form, failures reopen it with the
// pending edit retained.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if err := Validate(c.table, c.mode, c.pending); err != nil {
		c.lastErr = err
		return nil, err
	}

	c.state = StateSubmitting
	outcome := SaveRecord(ctx, c.deps, c.table, c.mode, c.pending)
	if _, saved := outcome.(Saved); saved {
		c.reset()
		return outcome, nil
	}
	c.lastErr = OutcomeError(outcome)
	c.state = StateOpen
	return outcome, nil
}

func (c *Controller) ensureClosed() error {
	switch c.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateOpen:
		return ErrFormOpen
	default:
		return nil
	}
}

func (c *Controller) ensureOpen() error {
	switch c.state {
	case StateSubmitting:
		return ErrSubmitInProgress
	case StateClosed:
		return ErrFormClosed
	default:
		return nil
	}
}

func (c *Controller) reset() {
	c.state = StateClosed
	c.mode = nil
	c.pending = PendingEdit{}
	c.lastErr = nil
}
