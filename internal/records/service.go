package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingFields     = errors.New("fields are required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable `operation.reason` code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "records.service.new"
	opList       = "records.list"
	opInsert     = "records.insert"
	opUpdate     = "records.update"
	opDelete     = "records.delete"

	reasonMissingDatabase = "missing_database"
	reasonMissingIDs      = "missing_id_provider"
	reasonMissingFields   = "missing_fields"
	reasonUnknownTable    = "unknown_table"
	reasonNotListable     = "not_listable"
	reasonQueryFailed     = "query_failed"
	reasonIDFailed        = "id_generation_failed"
	reasonNotFound        = "not_found"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Rows is the row-oriented half of the remote store.
type Rows interface {
	List(ctx context.Context, table Table) ([]Record, error)
	Insert(ctx context.Context, fields Fields) (RecordID, error)
	Update(ctx context.Context, id RecordID, fields Fields) error
	Delete(ctx context.Context, table Table, id RecordID) error
}

// ServiceConfig describes the dependencies of the GORM-backed row store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements Rows on top of GORM.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDs, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every row of a listable table in the table's sort order.
func (s *Service) List(ctx context.Context, table Table) ([]Record, error) {
	if s.db == nil {
		s.logError(opList, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opList, reasonMissingDatabase, errMissingDatabase)
	}

	switch table {
	case TableProjects:
		var rows []Project
		if err := s.db.WithContext(ctx).Order(table.OrderBy()).Find(&rows).Error; err != nil {
			s.logError(opList, reasonQueryFailed, err, zap.String("table", table.String()))
			return nil, newServiceError(opList, reasonQueryFailed, err)
		}
		result := make([]Record, 0, len(rows))
		for _, row := range rows {
			result = append(result, row.record())
		}
		return result, nil
	case TableEvents:
		var rows []Event
		if err := s.db.WithContext(ctx).Order(table.OrderBy()).Find(&rows).Error; err != nil {
			s.logError(opList, reasonQueryFailed, err, zap.String("table", table.String()))
			return nil, newServiceError(opList, reasonQueryFailed, err)
		}
		result := make([]Record, 0, len(rows))
		for _, row := range rows {
			result = append(result, row.record())
		}
		return result, nil
	case TableContactSubmissions:
		return nil, newServiceError(opList, reasonNotListable, ErrTableNotListable)
	default:
		return nil, newServiceError(opList, reasonUnknownTable, ErrUnknownTable)
	}
}

// Insert stores a new row and returns its identifier. The creation timestamp is
// assigned here, never by the caller.
func (s *Service) Insert(ctx context.Context, fields Fields) (RecordID, error) {
	if s.db == nil {
		s.logError(opInsert, reasonMissingDatabase, errMissingDatabase)
		return "", newServiceError(opInsert, reasonMissingDatabase, errMissingDatabase)
	}
	if fields == nil {
		return "", newServiceError(opInsert, reasonMissingFields, errMissingFields)
	}
	if s.idProvider == nil {
		s.logError(opInsert, reasonMissingIDs, errMissingIDProvider)
		return "", newServiceError(opInsert, reasonMissingIDs, errMissingIDProvider)
	}

	table := fields.Table()
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opInsert, reasonIDFailed, err, zap.String("table", table.String()))
		return "", newServiceError(opInsert, reasonIDFailed, err)
	}

	row := fields.newRow(id, s.clock().UTC())
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.logError(opInsert, reasonQueryFailed, err, zap.String("table", table.String()))
		return "", newServiceError(opInsert, reasonQueryFailed, err)
	}

	return RecordID(id), nil
}

// Update overwrites the writable columns of an existing row.
func (s *Service) Update(ctx context.Context, id RecordID, fields Fields) error {
	if s.db == nil {
		s.logError(opUpdate, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opUpdate, reasonMissingDatabase, errMissingDatabase)
	}
	if fields == nil {
		return newServiceError(opUpdate, reasonMissingFields, errMissingFields)
	}

	table := fields.Table()
	result := s.db.WithContext(ctx).
		Table(table.String()).
		Where("id = ?", id.String()).
		Updates(fields.columns())
	if result.Error != nil {
		s.logError(opUpdate, reasonQueryFailed, result.Error,
			zap.String("table", table.String()),
			zap.String("record_id", id.String()))
		return newServiceError(opUpdate, reasonQueryFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdate, reasonNotFound, ErrRecordNotFound)
	}
	return nil
}

// Delete removes a row by identifier.
func (s *Service) Delete(ctx context.Context, table Table, id RecordID) error {
	if s.db == nil {
		s.logError(opDelete, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDelete, reasonMissingDatabase, errMissingDatabase)
	}

	var model any
	switch table {
	case TableProjects:
		model = &Project{}
	case TableEvents:
		model = &Event{}
	case TableContactSubmissions:
		model = &ContactSubmission{}
	default:
		return newServiceError(opDelete, reasonUnknownTable, ErrUnknownTable)
	}

	result := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(model)
	if result.Error != nil {
		s.logError(opDelete, reasonQueryFailed, result.Error,
			zap.String("table", table.String()),
			zap.String("record_id", id.String()))
		return newServiceError(opDelete, reasonQueryFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, reasonNotFound, ErrRecordNotFound)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("records service error", attrs...)
}
