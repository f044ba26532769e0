package server

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/gallery"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const imageFormField = "image"

// tableMeta names a gallery table for visitors.
type tableMeta struct {
	Table   records.Table
	Path    string
	Noun    string
	Plural  string
	Heading string
}

func metaFor(table records.Table) tableMeta {
	switch table {
	case records.TableEvents:
		return tableMeta{Table: table, Path: "/events", Noun: "Event", Plural: "events", Heading: "Events"}
	default:
		return tableMeta{Table: table, Path: "/projects", Noun: "Project", Plural: "projects", Heading: "Projects"}
	}
}

type galleryPage struct {
	tableMeta
	View gallery.View
}

type formPage struct {
	tableMeta
	Action       string
	Editing      bool
	IsEvents     bool
	Pending      forms.PendingEdit
	Preview      string
	LocalPreview template.URL
	FreeTextDate bool
	Errors       map[string]string
	Error        string
}

type deletePage struct {
	tableMeta
	Confirmation gallery.DeleteConfirmation
}

type galleryRoutes struct {
	handler *httpHandler
	gallery *gallery.Gallery
	meta    tableMeta
}

func (r galleryRoutes) active() string {
	return r.meta.Table.String()
}

func (r galleryRoutes) list(c *gin.Context) {
	view := r.gallery.Load(c.Request.Context())
	if view.Err != nil {
		r.handler.logger.Warn("gallery load failed", zap.String("table", r.meta.Table.String()), zap.Error(view.Err))
	}
	data := r.handler.page(c, r.meta.Heading, r.active())
	data.Gallery = &galleryPage{tableMeta: r.meta, View: view}
	r.handler.templates.render(c, http.StatusOK, pageGallery, data)
}

func (r galleryRoutes) newForm(c *gin.Context) {
	controller, err := r.gallery.RequestCreate()
	if err != nil {
		r.handler.logger.Error("failed to open create form", zap.Error(err))
		r.handler.renderError(c, http.StatusInternalServerError, "Something went wrong", "The form could not be opened.")
		return
	}
	r.renderForm(c, http.StatusOK, controller, "")
}

func (r galleryRoutes) editForm(c *gin.Context) {
	controller, ok := r.openEdit(c)
	if !ok {
		return
	}
	r.renderForm(c, http.StatusOK, controller, "")
}

func (r galleryRoutes) create(c *gin.Context) {
	controller, err := r.gallery.RequestCreate()
	if err != nil {
		r.handler.logger.Error("failed to open create form", zap.Error(err))
		r.handler.renderError(c, http.StatusInternalServerError, "Something went wrong", "The form could not be opened.")
		return
	}
	r.submit(c, controller, "upload")
}

func (r galleryRoutes) update(c *gin.Context) {
	controller, ok := r.openEdit(c)
	if !ok {
		return
	}
	r.submit(c, controller, "update")
}

// openEdit resolves the record named in the path and opens an edit form for it,
// rendering the failure page itself when that is not possible.
func (r galleryRoutes) openEdit(c *gin.Context) (*forms.Controller, bool) {
	controller, err := r.gallery.RequestEdit(c.Request.Context(), records.RecordID(c.Param("id")))
	if err == nil {
		return controller, true
	}
	r.renderLookupError(c, err)
	return nil, false
}

func (r galleryRoutes) renderLookupError(c *gin.Context, err error) {
	var fetchErr *cache.FetchError
	switch {
	case errors.Is(err, records.ErrRecordNotFound):
		r.handler.renderError(c, http.StatusNotFound, r.meta.Noun+" not found", "It may have been deleted already.")
	case errors.As(err, &fetchErr):
		r.handler.renderError(c, http.StatusServiceUnavailable, "Unable to load "+r.meta.Plural, "Please try again later.")
	default:
		r.handler.logger.Error("gallery lookup failed", zap.Error(err))
		r.handler.renderError(c, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}
}

// submit copies the posted fields into the open form and runs it. verb names the
// action in visitor-facing messages.
func (r galleryRoutes) submit(c *gin.Context, controller *forms.Controller, verb string) {
	upload, tooLarge, err := r.readUpload(c)
	if err != nil {
		r.handler.logger.Warn("multipart form rejected", zap.Error(err))
		r.handler.renderError(c, http.StatusBadRequest, "Invalid form", "The submitted form could not be read.")
		return
	}
	if tooLarge {
		r.renderForm(c, http.StatusRequestEntityTooLarge, controller,
			fmt.Sprintf("Image must be smaller than %d MB", r.handler.maxUploadBytes>>20))
		return
	}

	_ = controller.Edit(func(pending *forms.PendingEdit) {
		pending.Title = c.PostForm("title")
		pending.Description = c.PostForm("description")
		pending.GithubLink = c.PostForm("github_link")
		pending.EventDate = c.PostForm("event_date")
	})
	if upload != nil {
		_ = controller.AttachFile(*upload)
	}

	outcome, err := controller.Submit(c.Request.Context())
	var validationErr *forms.ValidationError
	switch {
	case errors.As(err, &validationErr):
		r.renderForm(c, http.StatusUnprocessableEntity, controller, "Please fill in all required fields")
		return
	case err != nil:
		r.handler.logger.Error("form submit refused", zap.Error(err))
		r.handler.renderError(c, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	noun := strings.ToLower(r.meta.Noun)
	switch result := outcome.(type) {
	case forms.Saved:
		past := "uploaded"
		if verb == "update" {
			past = "updated"
		}
		setFlash(c, flashSuccess, fmt.Sprintf("%s %s successfully!", r.meta.Noun, past))
		c.Redirect(http.StatusSeeOther, r.meta.Path)
	case forms.UploadFailed:
		r.renderForm(c, http.StatusBadGateway, controller, "Failed to upload image: "+rootMessage(result.Err))
	case forms.WriteFailed:
		r.renderForm(c, http.StatusBadGateway, controller, fmt.Sprintf("Failed to %s %s: %s", verb, noun, rootMessage(result.Err)))
	}
}

// readUpload parses the multipart body within the configured size limit. A
// missing file yields a nil upload.
func (r galleryRoutes) readUpload(c *gin.Context) (*forms.Upload, bool, error) {
	limit := r.handler.maxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	if err := c.Request.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, true, nil
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, false, err
		}
	}

	file, header, err := c.Request.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	if header.Size > limit {
		return nil, true, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &forms.Upload{Name: header.Filename, ContentType: contentType, Data: data}, false, nil
}

// multipartOverhead leaves room for the text fields and part headers.
const multipartOverhead = 64 << 10

func (r galleryRoutes) renderForm(c *gin.Context, status int, controller *forms.Controller, message string) {
	pending := controller.Pending()
	_, editing := controller.Mode().(forms.EditMode)
	action := r.meta.Path
	title := "Add " + r.meta.Noun
	if mode, ok := controller.Mode().(forms.EditMode); ok {
		action = r.meta.Path + "/" + mode.Original.ID.String()
		title = "Edit " + r.meta.Noun
	}

	problems := map[string]string{}
	var validationErr *forms.ValidationError
	if errors.As(controller.Err(), &validationErr) {
		problems = validationErr.Fields
	}

	data := r.handler.page(c, title, r.active())
	data.Form = &formPage{
		tableMeta: r.meta,
		Action:    action,
		Editing:   editing,
		IsEvents:  r.meta.Table == records.TableEvents,
		Pending:   pending,
		Errors:    problems,
		Error:     message,
	}
	if _, err := time.Parse(forms.EventDateLayout, pending.EventDate); err != nil && pending.EventDate != "" {
		data.Form.FreeTextDate = true
	}
	if pending.Upload != nil && strings.HasPrefix(pending.Preview, "data:image/") {
		data.Form.LocalPreview = template.URL(pending.Preview)
	} else {
		data.Form.Preview = pending.Preview
	}
	r.handler.templates.render(c, status, pageForm, data)
}

func (r galleryRoutes) confirmDelete(c *gin.Context) {
	confirmation, err := r.gallery.RequestDelete(c.Request.Context(), records.RecordID(c.Param("id")))
	if err != nil {
		r.renderLookupError(c, err)
		return
	}
	data := r.handler.page(c, "Delete "+r.meta.Noun, r.active())
	data.Delete = &deletePage{tableMeta: r.meta, Confirmation: confirmation}
	r.handler.templates.render(c, http.StatusOK, pageDelete, data)
}

func (r galleryRoutes) delete(c *gin.Context) {
	id := records.RecordID(c.Param("id"))
	err := r.gallery.ConfirmDelete(c.Request.Context(), id, c.PostForm("token"))
	switch {
	case err == nil:
		setFlash(c, flashSuccess, r.meta.Noun+" deleted successfully!")
	case errors.Is(err, gallery.ErrInvalidConfirmation):
		r.handler.logger.Warn("delete confirmation rejected", zap.String("record_id", id.String()), zap.Error(err))
		setFlash(c, flashError, "Delete confirmation expired. Please try again.")
	default:
		setFlash(c, flashError, fmt.Sprintf("Failed to delete %s: %s", strings.ToLower(r.meta.Noun), rootMessage(err)))
	}
	c.Redirect(http.StatusSeeOther, r.meta.Path)
}
