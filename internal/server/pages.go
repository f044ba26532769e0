package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/gallery"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const homeHighlightLimit = 3

type homePage struct {
	Highlights []Highlight
}

type contactPage struct {
	Form      forms.ContactForm
	Errors    map[string]string
	Submitted bool
}

func (h *httpHandler) handleHome(c *gin.Context) {
	data := h.page(c, "", "home")
	data.Home = &homePage{Highlights: h.homeHighlights(c)}
	h.templates.render(c, http.StatusOK, pageHome, data)
}

// homeHighlights shows the next upcoming events from the cache, falling back
// to the standing highlights when none are upcoming or the table is unavailable.
// Free-text dates count as upcoming.
func (h *httpHandler) homeHighlights(c *gin.Context) []Highlight {
	snapshot, err := h.cache.Get(c.Request.Context(), records.TableEvents)
	if err != nil {
		h.logger.Warn("home events unavailable", zap.Error(err))
		return h.site.Highlights
	}
	today := h.clock().Format(forms.EventDateLayout)
	highlights := make([]Highlight, 0, homeHighlightLimit)
	for _, record := range snapshot.Records {
		if len(highlights) == homeHighlightLimit {
			break
		}
		if _, err := time.Parse(forms.EventDateLayout, record.EventDate); err == nil && record.EventDate < today {
			continue
		}
		highlights = append(highlights, Highlight{
			Title:       record.Title,
			DateLabel:   gallery.FormatEventDate(record.EventDate),
			Description: record.Description,
		})
	}
	if len(highlights) == 0 {
		return h.site.Highlights
	}
	return highlights
}

func (h *httpHandler) handleContactForm(c *gin.Context) {
	data := h.page(c, "Contact", "contact")
	data.Contact = &contactPage{Submitted: c.Query("sent") == "1"}
	h.templates.render(c, http.StatusOK, pageContact, data)
}

func (h *httpHandler) handleContactSubmit(c *gin.Context) {
	form := forms.ContactForm{
		Name:    c.PostForm("name"),
		Email:   c.PostForm("email"),
		Message: c.PostForm("message"),
	}
	err := h.contact.Submit(c.Request.Context(), form)
	if err == nil {
		setFlash(c, flashSuccess, "Message sent successfully!")
		c.Redirect(http.StatusSeeOther, "/contact?sent=1")
		return
	}

	data := h.page(c, "Contact", "contact")
	data.Contact = &contactPage{Form: form}

	var validationErr *forms.ValidationError
	if errors.As(err, &validationErr) {
		data.Contact.Errors = validationErr.Fields
		data.Flash = &flashMessage{Kind: flashError, Text: "Please fill in all fields"}
		h.templates.render(c, http.StatusUnprocessableEntity, pageContact, data)
		return
	}

	data.Flash = &flashMessage{Kind: flashError, Text: "Failed to send message: " + rootMessage(err)}
	h.templates.render(c, http.StatusBadGateway, pageContact, data)
}

// rootMessage returns the innermost error text, which is what a visitor can act on.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
