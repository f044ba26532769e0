package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/gallery"
	"github.com/MarcoPoloResearchLab/clubsite/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMaxUploadBytes = 5 << 20

var (
	errMissingProjects = errors.New("projects gallery dependency required")
	errMissingEvents   = errors.New("events gallery dependency required")
	errMissingContact  = errors.New("contact service dependency required")
	errMissingCache    = errors.New("list cache dependency required")
	errMissingChanges  = errors.New("change dispatcher dependency required")
)

type Dependencies struct {
	Projects *gallery.Gallery
	Events   *gallery.Gallery
	Contact  *forms.ContactService
	Cache    *cache.ListCache
	Changes  *changes.Dispatcher
	Site     Site
	// BlobsDirectory is served under BlobsPublicPath when set.
	BlobsDirectory    string
	BlobsPublicPath   string
	MaxUploadBytes    int64
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Projects == nil {
		return nil, errMissingProjects
	}
	if deps.Events == nil {
		return nil, errMissingEvents
	}
	if deps.Contact == nil {
		return nil, errMissingContact
	}
	if deps.Cache == nil {
		return nil, errMissingCache
	}
	if deps.Changes == nil {
		return nil, errMissingChanges
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	site := deps.Site
	if site.Name == "" {
		site = DefaultSite("")
	}
	maxUploadBytes := deps.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	templates, err := parsePages()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))

	handler := &httpHandler{
		galleries: map[string]*gallery.Gallery{
			deps.Projects.Table().String(): deps.Projects,
			deps.Events.Table().String():   deps.Events,
		},
		contact:        deps.Contact,
		cache:          deps.Cache,
		changes:        deps.Changes,
		site:           site,
		templates:      templates,
		maxUploadBytes: maxUploadBytes,
		heartbeat:      heartbeat,
		clock:          clock,
		logger:         logger,
	}

	router.GET("/", handler.handleHome)
	router.GET("/contact", handler.handleContactForm)
	router.POST("/contact", handler.handleContactSubmit)

	for _, target := range []*gallery.Gallery{deps.Projects, deps.Events} {
		routes := galleryRoutes{handler: handler, gallery: target, meta: metaFor(target.Table())}
		group := router.Group(routes.meta.Path)
		group.GET("", routes.list)
		group.GET("/new", routes.newForm)
		group.POST("", routes.create)
		group.GET("/:id/edit", routes.editForm)
		group.POST("/:id", routes.update)
		group.GET("/:id/delete", routes.confirmDelete)
		group.POST("/:id/delete", routes.delete)
	}

	api := router.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}))
	api.GET("/changes", handler.handleChangeStream)
	api.GET("/:table", handler.handleListRecords)

	if deps.BlobsDirectory != "" {
		publicPath, err := blobRoute(deps.BlobsPublicPath)
		if err != nil {
			return nil, err
		}
		router.Static(publicPath, deps.BlobsDirectory)
	}

	router.NoRoute(func(c *gin.Context) {
		handler.renderError(c, http.StatusNotFound, "Page not found", "The page you are looking for does not exist.")
	})

	return router, nil
}

// blobRoute returns the local route for the blob base URL. An absolute URL
// contributes only its path, as when a proxy fronts the blob directory.
func blobRoute(publicURL string) (string, error) {
	if publicURL == "" {
		return "/blobs", nil
	}
	parsed, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("invalid blob public url %q: %w", publicURL, err)
	}
	route := "/" + strings.Trim(parsed.Path, "/")
	if route == "/" {
		return "", fmt.Errorf("blob public url %q needs a path to serve blobs under", publicURL)
	}
	return route, nil
}

type httpHandler struct {
	galleries      map[string]*gallery.Gallery
	contact        *forms.ContactService
	cache          *cache.ListCache
	changes        *changes.Dispatcher
	site           Site
	templates      pages
	maxUploadBytes int64
	heartbeat      time.Duration
	clock          func() time.Time
	logger         *zap.Logger
}

// pageData is the root value of every template.
type pageData struct {
	Site    Site
	Title   string
	Active  string
	Message string
	Flash   *flashMessage
	Home    *homePage
	Gallery *galleryPage
	Form    *formPage
	Delete  *deletePage
	Contact *contactPage
}

func (h *httpHandler) page(c *gin.Context, title, active string) pageData {
	return pageData{
		Site:   h.site,
		Title:  title,
		Active: active,
		Flash:  takeFlash(c),
	}
}

func (h *httpHandler) renderError(c *gin.Context, status int, title, message string) {
	data := h.page(c, title, "")
	data.Message = message
	h.templates.render(c, status, pageError, data)
}
