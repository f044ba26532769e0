package forms

import (
	"encoding/base64"
	"strings"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

// Mode is a tagged variant: CreateMode or EditMode.
type Mode interface {
	isMode()
}

// CreateMode opens an empty form that will insert a new record.
type CreateMode struct{}

func (CreateMode) isMode() {}

// EditMode opens a form prefilled from Original that will update it.
type EditMode struct {
	Original records.Record
}

func (EditMode) isMode() {}

// State enumerates controller states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// Upload is a local file chosen in the form and not yet sent to the blob store.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// PendingEdit is the in-progress form state for one record. Only the field that
// belongs to the form's table (GithubLink or EventDate) is read on submit.
type PendingEdit struct {
	Title       string
	Description string
	GithubLink  string
	EventDate   string
	Upload      *Upload
	Preview     string
}

func pendingFromRecord(record records.Record) PendingEdit {
	return PendingEdit{
		Title:       record.Title,
		Description: record.Description,
		GithubLink:  record.GithubLink,
		EventDate:   record.EventDate,
		Preview:     record.ImageURL,
	}
}

func previewDataURL(upload Upload) string {
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(upload.Data)
}

func (p PendingEdit) fields(table records.Table, imageURL string) records.Fields {
	title := strings.TrimSpace(p.Title)
	description := strings.TrimSpace(p.Description)
	if table == records.TableEvents {
		return records.EventFields{
			Title:       title,
			Description: description,
			ImageURL:    imageURL,
			EventDate:   strings.TrimSpace(p.EventDate),
		}
	}
	return records.ProjectFields{
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
		GithubLink:  strings.TrimSpace(p.GithubLink),
	}
}
