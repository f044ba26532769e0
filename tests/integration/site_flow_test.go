package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/blobs"
	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/database"
	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/gallery"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/MarcoPoloResearchLab/clubsite/internal/server"
	"github.com/gin-gonic/gin"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	confirmSigningSecret = "integration-secret"
	eventTitle           = "Hackathon 2025"
	eventDate            = "2025-04-20"
)

var tokenPattern = regexp.MustCompile(`name="token" value="([^"]+)"`)

type noticePayload struct {
	Table    string `json:"table"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
}

func TestEventLifecyclePublishesNotices(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	natsURL := startNATS(testContext)
	subscriber, err := nats.Connect(natsURL)
	if err != nil {
		testContext.Fatalf("failed to connect subscriber: %v", err)
	}
	defer subscriber.Close()
	messages := make(chan *nats.Msg, 8)
	subscription, err := subscriber.ChanSubscribe("clubsite.>", messages)
	if err != nil {
		testContext.Fatalf("failed to subscribe: %v", err)
	}
	defer subscription.Unsubscribe() //nolint:errcheck
	if err := subscriber.Flush(); err != nil {
		testContext.Fatalf("failed to flush subscription: %v", err)
	}

	publisher, err := changes.NewNATSPublisher(natsURL, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to connect publisher: %v", err)
	}
	defer publisher.Close()

	httpServer := httptest.NewServer(buildHandler(testContext, publisher))
	defer httpServer.Close()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	createResponse := postMultipart(testContext, client, httpServer.URL+"/events", map[string]string{
		"title":       eventTitle,
		"description": "24-hour coding challenge",
		"event_date":  eventDate,
	})
	if createResponse.StatusCode != http.StatusSeeOther {
		testContext.Fatalf("expected redirect after create, got %d", createResponse.StatusCode)
	}
	created := awaitNotice(testContext, messages, "clubsite.events.created")

	var listed struct {
		Records []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			ImageURL  string `json:"image_url"`
			EventDate string `json:"event_date"`
		} `json:"records"`
	}
	listResponse, err := client.Get(httpServer.URL + "/api/events")
	if err != nil {
		testContext.Fatalf("list request failed: %v", err)
	}
	if err := json.NewDecoder(listResponse.Body).Decode(&listed); err != nil {
		testContext.Fatalf("failed to decode list: %v", err)
	}
	_ = listResponse.Body.Close()
	if len(listed.Records) != 1 || listed.Records[0].ID != created.RecordID || listed.Records[0].EventDate != eventDate {
		testContext.Fatalf("unexpected listed events %#v", listed.Records)
	}

	imageResponse, err := client.Get(httpServer.URL + listed.Records[0].ImageURL)
	if err != nil {
		testContext.Fatalf("image request failed: %v", err)
	}
	_ = imageResponse.Body.Close()
	if imageResponse.StatusCode != http.StatusOK {
		testContext.Fatalf("expected uploaded image to be served, got %d", imageResponse.StatusCode)
	}

	confirmResponse, err := client.Get(httpServer.URL + "/events/" + created.RecordID + "/delete")
	if err != nil {
		testContext.Fatalf("confirm request failed: %v", err)
	}
	confirmBody, _ := io.ReadAll(confirmResponse.Body)
	_ = confirmResponse.Body.Close()
	match := tokenPattern.FindSubmatch(confirmBody)
	if len(match) != 2 {
		testContext.Fatalf("expected confirmation token in %s", confirmBody)
	}

	deleteResponse, err := client.PostForm(httpServer.URL+"/events/"+created.RecordID+"/delete", url.Values{"token": {string(match[1])}})
	if err != nil {
		testContext.Fatalf("delete request failed: %v", err)
	}
	_ = deleteResponse.Body.Close()
	if deleteResponse.StatusCode != http.StatusSeeOther {
		testContext.Fatalf("expected redirect after delete, got %d", deleteResponse.StatusCode)
	}
	deleted := awaitNotice(testContext, messages, "clubsite.events.deleted")
	if deleted.RecordID != created.RecordID {
		testContext.Fatalf("expected delete notice for %s, got %s", created.RecordID, deleted.RecordID)
	}

	contactResponse, err := client.PostForm(httpServer.URL+"/contact", url.Values{
		"name":    {"Ada"},
		"email":   {"ada@example.com"},
		"message": {"How do I join?"},
	})
	if err != nil {
		testContext.Fatalf("contact request failed: %v", err)
	}
	_ = contactResponse.Body.Close()
	if contactResponse.StatusCode != http.StatusSeeOther {
		testContext.Fatalf("expected redirect after contact submit, got %d", contactResponse.StatusCode)
	}
	awaitNotice(testContext, messages, "clubsite.contact_submissions.created")
}

func buildHandler(testContext *testing.T, publisher changes.Publisher) http.Handler {
	testContext.Helper()
	logger := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "integration.db"), logger)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	rows, err := records.NewService(records.ServiceConfig{Database: db, IDProvider: records.NewUUIDProvider(), Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build records service: %v", err)
	}
	blobStore, err := blobs.NewFileSystemStore(blobs.FileSystemConfig{Directory: testContext.TempDir(), Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build blob store: %v", err)
	}
	dispatcher := changes.NewDispatcher()
	hub := changes.NewHub(publisher, logger, dispatcher.Publish)
	listCache, err := cache.New(cache.Config{Lister: rows, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to build cache: %v", err)
	}
	confirmer, err := gallery.NewConfirmer(gallery.ConfirmerConfig{SigningSecret: []byte(confirmSigningSecret), TTL: time.Minute})
	if err != nil {
		testContext.Fatalf("failed to build confirmer: %v", err)
	}
	formDeps := forms.Dependencies{Rows: rows, Blobs: blobStore, Notifier: hub, Logger: logger}

	galleries := make(map[records.Table]*gallery.Gallery)
	for _, table := range []records.Table{records.TableProjects, records.TableEvents} {
		built, err := gallery.New(gallery.Config{Table: table, Cache: listCache, Forms: formDeps, Confirmer: confirmer, Logger: logger})
		if err != nil {
			testContext.Fatalf("failed to build %s gallery: %v", table, err)
		}
		galleries[table] = built
	}
	contact, err := forms.NewContactService(rows, hub, logger)
	if err != nil {
		testContext.Fatalf("failed to build contact service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Projects:       galleries[records.TableProjects],
		Events:         galleries[records.TableEvents],
		Contact:        contact,
		Cache:          listCache,
		Changes:        dispatcher,
		Site:           server.DefaultSite("EyeQ Club"),
		BlobsDirectory: blobStore.Directory(),
		Logger:         logger,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func postMultipart(testContext *testing.T, client *http.Client, target string, fields map[string]string) *http.Response {
	testContext.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}
	part, err := writer.CreateFormFile("image", "poster.png")
	if err != nil {
		testContext.Fatalf("failed to create file part: %v", err)
	}
	_, _ = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...))
	_ = writer.Close()

	response, err := client.Post(target, writer.FormDataContentType(), body)
	if err != nil {
		testContext.Fatalf("multipart request failed: %v", err)
	}
	_ = response.Body.Close()
	return response
}

func awaitNotice(testContext *testing.T, messages <-chan *nats.Msg, subject string) noticePayload {
	testContext.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			testContext.Fatalf("timed out waiting for %s", subject)
		case msg := <-messages:
			if msg.Subject != subject {
				continue
			}
			var payload noticePayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				testContext.Fatalf("failed to decode notice: %v", err)
			}
			if !strings.HasPrefix(subject, "clubsite."+payload.Table+".") || payload.RecordID == "" {
				testContext.Fatalf("unexpected notice %#v on %s", payload, subject)
			}
			return payload
		}
	}
}

func startNATS(testContext *testing.T) string {
	testContext.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		testContext.Fatalf("failed to start embedded NATS: %v", err)
	}
	srv.Start()
	testContext.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		testContext.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}
