package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	EventTableChanged        = "table-change"
	eventHeartbeat           = "heartbeat"
	defaultHeartbeatInterval = 15 * time.Second
)

type recordPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url"`
	GithubLink  string `json:"github_link,omitempty"`
	EventDate   string `json:"event_date,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type listResponsePayload struct {
	Table     string          `json:"table"`
	Records   []recordPayload `json:"records"`
	FetchedAt string          `json:"fetched_at"`
}

type changePayload struct {
	Table    string `json:"table"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
	At       string `json:"at"`
}

func (h *httpHandler) handleListRecords(c *gin.Context) {
	table, err := records.ParseTable(c.Param("table"))
	if err != nil || !table.Listable() {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_table"})
		return
	}

	snapshot, err := h.cache.Get(c.Request.Context(), table)
	if err != nil {
		h.logger.Warn("record list unavailable", zap.String("table", table.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fetch_failed"})
		return
	}

	response := listResponsePayload{
		Table:     table.String(),
		Records:   make([]recordPayload, 0, len(snapshot.Records)),
		FetchedAt: snapshot.FetchedAt.UTC().Format(time.RFC3339),
	}
	for _, record := range snapshot.Records {
		response.Records = append(response.Records, recordPayload{
			ID:          record.ID.String(),
			Title:       record.Title,
			Description: record.Description,
			ImageURL:    record.ImageURL,
			GithubLink:  record.GithubLink,
			EventDate:   record.EventDate,
			CreatedAt:   record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}

// handleChangeStream streams table-change events for the requested table, or
// for every gallery table when none is named.
func (h *httpHandler) handleChangeStream(c *gin.Context) {
	tables, err := h.streamTables(c.Query("table"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_table"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stream := h.subscribe(ctx, tables)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case notice, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(EventTableChanged, changePayload{
				Table:    notice.Table.String(),
				Kind:     string(notice.Kind),
				RecordID: notice.RecordID.String(),
				At:       notice.At.UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case at := <-heartbeat.C:
			c.SSEvent(eventHeartbeat, gin.H{"at": at.UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) streamTables(raw string) ([]records.Table, error) {
	if raw == "" {
		tables := make([]records.Table, 0, len(h.galleries))
		for _, table := range []records.Table{records.TableProjects, records.TableEvents} {
			if _, ok := h.galleries[table.String()]; ok {
				tables = append(tables, table)
			}
		}
		return tables, nil
	}
	table, err := records.ParseTable(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := h.galleries[table.String()]; !ok {
		return nil, errors.New("table has no gallery")
	}
	return []records.Table{table}, nil
}

// subscribe merges the per-table dispatcher streams until ctx is done.
func (h *httpHandler) subscribe(ctx context.Context, tables []records.Table) <-chan changes.Notice {
	merged := make(chan changes.Notice, 16)
	for _, table := range tables {
		source, _ := h.changes.Subscribe(ctx, table)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case notice, ok := <-source:
					if !ok {
						return
					}
					select {
					case merged <- notice:
					default:
					}
				}
			}
		}()
	}
	return merged
}
