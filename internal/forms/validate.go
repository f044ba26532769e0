package forms

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

// EventDateLayout is the storage and input format of event dates.
const EventDateLayout = "2006-01-02"

// Field names reported by ValidationError.
const (
	FieldTitle      = "title"
	FieldImage      = "image"
	FieldGithubLink = "github_link"
	FieldEventDate  = "event_date"
	FieldName       = "name"
	FieldEmail      = "email"
	FieldMessage    = "message"
)

// ValidationError lists the fields that block a submit. No network call is made
// when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "forms: invalid fields: " + strings.Join(names, ", ")
}

// Message returns the message for one field, or "".
func (e *ValidationError) Message(field string) string {
	if e == nil {
		return ""
	}
	return e.Fields[field]
}

// Validate checks the pending edit against the requirements of the mode. Create
// requires an image file and the table's detail field; edit keeps the existing
// image when no file is chosen.
func Validate(table records.Table, mode Mode, pending PendingEdit) error {
	problems := map[string]string{}

	if strings.TrimSpace(pending.Title) == "" {
		problems[FieldTitle] = "Title is required"
	}

	if _, creating := mode.(CreateMode); creating && (pending.Upload == nil || len(pending.Upload.Data) == 0) {
		problems[FieldImage] = "Image is required"
	}
	if pending.Upload != nil && len(pending.Upload.Data) > 0 && !strings.HasPrefix(pending.Upload.ContentType, "image/") {
		problems[FieldImage] = "Image must be an image file"
	}

	switch table {
	case records.TableProjects:
		link := strings.TrimSpace(pending.GithubLink)
		if link == "" {
			problems[FieldGithubLink] = "GitHub repository is required"
		} else if !isWebURL(link) {
			problems[FieldGithubLink] = "GitHub repository must be an http(s) URL"
		}
	case records.TableEvents:
		date := strings.TrimSpace(pending.EventDate)
		if date == "" {
			problems[FieldEventDate] = "Date is required"
		} else if _, err := time.Parse(EventDateLayout, date); err != nil && !keepsOriginalDate(mode, date) {
			problems[FieldEventDate] = "Date must be formatted as YYYY-MM-DD"
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// keepsOriginalDate reports whether an edit leaves a legacy free-text date as stored.
func keepsOriginalDate(mode Mode, date string) bool {
	edit, ok := mode.(EditMode)
	return ok && strings.TrimSpace(edit.Original.EventDate) == date
}

func isWebURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
