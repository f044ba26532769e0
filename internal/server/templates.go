package server

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed templates/*.html
var templateFiles embed.FS

const layoutTemplate = "templates/layout.html"

const (
	pageHome    = "home"
	pageGallery = "gallery"
	pageForm    = "form"
	pageDelete  = "delete"
	pageContact = "contact"
	pageError   = "error"
)

var templateFuncs = template.FuncMap{
	"year": func() int { return time.Now().Year() },
	"fieldError": func(problems map[string]string, field string) string {
		return problems[field]
	},
}

// pages maps a page name to the layout cloned with that page's blocks.
type pages map[string]*template.Template

func parsePages() (pages, error) {
	layout, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFiles, layoutTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	parsed := make(pages)
	for _, name := range []string{pageHome, pageGallery, pageForm, pageDelete, pageContact, pageError} {
		clone, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFiles, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		parsed[name] = clone
	}
	return parsed, nil
}

func (p pages) render(c *gin.Context, status int, name string, data pageData) {
	c.Render(status, render.HTML{Template: p[name], Name: "layout", Data: data})
}
