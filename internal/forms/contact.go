package forms

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
)

// Inserter is the write-only slice of the row store used by the contact form.
type Inserter interface {
	Insert(ctx context.Context, fields records.Fields) (records.RecordID, error)
}

// ContactForm is the pending contact message.
type ContactForm struct {
	Name    string
	Email   string
	Message string
}

// Validate requires every field and a parseable email address.
func (f ContactForm) Validate() error {
	problems := map[string]string{}
	if strings.TrimSpace(f.Name) == "" {
		problems[FieldName] = "Name is required"
	}
	email := strings.TrimSpace(f.Email)
	if email == "" {
		problems[FieldEmail] = "Email is required"
	} else if address, err := mail.ParseAddress(email); err != nil || address.Address != email {
		problems[FieldEmail] = "Email must be a valid address"
	}
	if strings.TrimSpace(f.Message) == "" {
		problems[FieldMessage] = "Message is required"
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// ContactService submits contact messages. There is no list cache behind it.
type ContactService struct {
	rows     Inserter
	notifier changes.Notifier
	logger   *zap.Logger
}

// NewContactService constructs the contact form backend.
func NewContactService(rows Inserter, notifier changes.Notifier, logger *zap.Logger) (*ContactService, error) {
	if rows == nil {
		return nil, errors.New("forms: contact row store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{rows: rows, notifier: notifier, logger: logger}, nil
}

// Submit validates and stores the message. Validation failures never reach the store.
func (s *ContactService) Submit(ctx context.Context, form ContactForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	id, err := s.rows.Insert(ctx, records.ContactFields{
		Name:    strings.TrimSpace(form.Name),
		Email:   strings.TrimSpace(form.Email),
		Message: strings.TrimSpace(form.Message),
	})
	if err != nil {
		s.logger.Warn("contact submission failed", zap.Error(err))
		return &WriteError{Table: records.TableContactSubmissions, Err: err}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, changes.Notice{Table: records.TableContactSubmissions, Kind: changes.KindCreated, RecordID: id})
	}
	s.logger.Info("contact submission stored", zap.String("record_id", id.String()))
	return nil
}
