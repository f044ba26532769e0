package records

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Table enumerates the row namespaces exposed by the store.
type Table string

const (
	// TableProjects holds the projects gallery.
	TableProjects Table = "projects"
	// TableEvents holds the events gallery.
	TableEvents Table = "events"
	// TableContactSubmissions holds write-only contact form submissions.
	TableContactSubmissions Table = "contact_submissions"
)

const maxIdentifierLength = 190

var (
	// ErrUnknownTable indicates that a table name is outside the supported set.
	ErrUnknownTable = errors.New("records: unknown table")
	// ErrInvalidRecordID indicates that a record identifier is empty or exceeds storage bounds.
	ErrInvalidRecordID = errors.New("records: invalid record id")
	// ErrRecordNotFound indicates that no row matched the requested identifier.
	ErrRecordNotFound = errors.New("records: record not found")
	// ErrTableNotListable indicates a write-only table was asked for its rows.
	ErrTableNotListable = errors.New("records: table is write-only")
)

// ParseTable validates raw input against the supported tables.
func ParseTable(rawInput string) (Table, error) {
	switch Table(strings.ToLower(strings.TrimSpace(rawInput))) {
	case TableProjects:
		return TableProjects, nil
	case TableEvents:
		return TableEvents, nil
	case TableContactSubmissions:
		return TableContactSubmissions, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, rawInput)
	}
}

// String returns the table name.
func (t Table) String() string {
	return string(t)
}

// Listable reports whether rows of the table can be read back.
func (t Table) Listable() bool {
	return t == TableProjects || t == TableEvents
}

// OrderBy returns the table-specific sort applied by the store.
func (t Table) OrderBy() string {
	switch t {
	case TableEvents:
		return "event_date ASC, created_at ASC"
	default:
		return "created_at DESC"
	}
}

// RecordID represents a validated record identifier.
type RecordID string

// NewRecordID validates raw input and returns a RecordID.
func NewRecordID(rawInput string) (RecordID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordID, maxIdentifierLength)
	}
	return RecordID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RecordID) String() string {
	return string(id)
}

// Record is the read model shared by the gallery tables.
type Record struct {
	Table       Table
	ID          RecordID
	Title       string
	Description string
	ImageURL    string
	GithubLink  string
	EventDate   string
	CreatedAt   time.Time
}

// Fields returns the writable fields of the record for its table.
func (r Record) Fields() Fields {
	switch r.Table {
	case TableEvents:
		return EventFields{Title: r.Title, Description: r.Description, ImageURL: r.ImageURL, EventDate: r.EventDate}
	default:
		return ProjectFields{Title: r.Title, Description: r.Description, ImageURL: r.ImageURL, GithubLink: r.GithubLink}
	}
}

// Project models a persisted projects row.
type Project struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Title       string    `gorm:"column:title;size:255;not null"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	ImageURL    string    `gorm:"column:image_url;size:1024;not null"`
	GithubLink  string    `gorm:"column:github_link;size:1024;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_projects_created"`
}

// TableName provides the explicit table binding for GORM.
func (Project) TableName() string {
	return TableProjects.String()
}

func (p Project) record() Record {
	return Record{
		Table:       TableProjects,
		ID:          RecordID(p.ID),
		Title:       p.Title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		GithubLink:  p.GithubLink,
		CreatedAt:   p.CreatedAt,
	}
}

// Event models a persisted events row. EventDate is stored as YYYY-MM-DD so that
// lexical order matches chronological order.
type Event struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Title       string    `gorm:"column:title;size:255;not null"`
	Description string    `gorm:"column:description;type:text;not null;default:''"`
	ImageURL    string    `gorm:"column:image_url;size:1024;not null"`
	EventDate   string    `gorm:"column:event_date;size:32;not null;index:idx_events_date"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return TableEvents.String()
}

func (e Event) record() Record {
	return Record{
		Table:       TableEvents,
		ID:          RecordID(e.ID),
		Title:       e.Title,
		Description: e.Description,
		ImageURL:    e.ImageURL,
		EventDate:   e.EventDate,
		CreatedAt:   e.CreatedAt,
	}
}

// ContactSubmission models a message left through the contact form.
type ContactSubmission struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Email     string    `gorm:"column:email;size:320;not null"`
	Message   string    `gorm:"column:message;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (ContactSubmission) TableName() string {
	return TableContactSubmissions.String()
}

// Fields is the typed payload of an insert or update. Each implementation is bound
// to exactly one table.
type Fields interface {
	Table() Table
	newRow(id string, createdAt time.Time) any
	columns() map[string]any
}

// ProjectFields carries writable project columns.
type ProjectFields struct {
	Title       string
	Description string
	ImageURL    string
	GithubLink  string
}

// Table binds the fields to the projects table.
func (ProjectFields) Table() Table { return TableProjects }

func (f ProjectFields) newRow(id string, createdAt time.Time) any {
	return &Project{ID: id, Title: f.Title, Description: f.Description, ImageURL: f.ImageURL, GithubLink: f.GithubLink, CreatedAt: createdAt}
}

func (f ProjectFields) columns() map[string]any {
	return map[string]any{
		"title":       f.Title,
		"description": f.Description,
		"image_url":   f.ImageURL,
		"github_link": f.GithubLink,
	}
}

// EventFields carries writable event columns.
type EventFields struct {
	Title       string
	Description string
	ImageURL    string
	EventDate   string
}

// Table binds the fields to the events table.
func (EventFields) Table() Table { return TableEvents }

func (f EventFields) newRow(id string, createdAt time.Time) any {
	return &Event{ID: id, Title: f.Title, Description: f.Description, ImageURL: f.ImageURL, EventDate: f.EventDate, CreatedAt: createdAt}
}

func (f EventFields) columns() map[string]any {
	return map[string]any{
		"title":       f.Title,
		"description": f.Description,
		"image_url":   f.ImageURL,
		"event_date":  f.EventDate,
	}
}

// ContactFields carries a contact form submission.
type ContactFields struct {
	Name    string
	Email   string
	Message string
}

// Table binds the fields to the contact submissions table.
func (ContactFields) Table() Table { return TableContactSubmissions }

func (f ContactFields) newRow(id string, createdAt time.Time) any {
	return &ContactSubmission{ID: id, Name: f.Name, Email: f.Email, Message: f.Message, CreatedAt: createdAt}
}

func (f ContactFields) columns() map[string]any {
	return map[string]any{
		"name":    f.Name,
		"email":   f.Email,
		"message": f.Message,
	}
}

// Models lists every GORM model owned by the package, for schema migration.
func Models() []any {
	return []any{&Project{}, &Event{}, &ContactSubmission{}}
}
