// Package gallery renders a cached table as cards and dispatches the create,
// edit and delete intents of one gallery page.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/clubsite/internal/cache"
	"github.com/MarcoPoloResearchLab/clubsite/internal/changes"
	"github.com/MarcoPoloResearchLab/clubsite/internal/forms"
	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
	"go.uber.org/zap"
)

var (
	errMissingCache     = errors.New("gallery: cache is required")
	errMissingConfirmer = errors.New("gallery: confirmer is required")
)

// Card is the rendered form of one record.
type Card struct {
	ID          string
	Title       string
	Description string
	ImageURL    string
	LinkURL     string
	DateLabel   string
}

// View is the gallery as rendered for one request. Err is a *cache.FetchError
// when the table could not be loaded; the page stays interactive.
type View struct {
	Table records.Table
	Cards []Card
	Err   error
}

// Empty reports a successful load with no records.
func (v View) Empty() bool {
	return v.Err == nil && len(v.Cards) == 0
}

// DeleteConfirmation is the pending acknowledgement of a delete intent.
type DeleteConfirmation struct {
	Record    records.Record
	Token     string
	ExpiresAt time.Time
}

// Config describes the collaborators of a Gallery.
type Config struct {
	Table     records.Table
	Cache     *cache.ListCache
	Forms     forms.Dependencies
	Confirmer *Confirmer
	Logger    *zap.Logger
}

// Gallery binds one table to its cache, form workflow and delete confirmation.
type Gallery struct {
	table     records.Table
	cache     *cache.ListCache
	forms     forms.Dependencies
	confirmer *Confirmer
	logger    *zap.Logger
}

// New validates the configuration and constructs a Gallery.
func New(cfg Config) (*Gallery, error) {
	if !cfg.Table.Listable() {
		return nil, fmt.Errorf("gallery: %w: %s", records.ErrTableNotListable, cfg.Table)
	}
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	if cfg.Confirmer == nil {
		return nil, errMissingConfirmer
	}
	formDeps := cfg.Forms
	if formDeps.Cache == nil {
		formDeps.Cache = cfg.Cache
	}
	if formDeps.Logger == nil {
		formDeps.Logger = cfg.Logger
	}
	if _, err := forms.NewController(cfg.Table, formDeps); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gallery{
		table:     cfg.Table,
		cache:     cfg.Cache,
		forms:     formDeps,
		confirmer: cfg.Confirmer,
		logger:    logger,
	}, nil
}

// Table returns the gallery table.
func (g *Gallery) Table() records.Table {
	return g.table
}

// Load reads the cache and renders cards.
func (g *Gallery) Load(ctx context.Context) View {
	snapshot, err := g.cache.Get(ctx, g.table)
	if err != nil {
		return View{Table: g.table, Err: err}
	}
	cards := make([]Card, 0, len(snapshot.Records))
	for _, record := range snapshot.Records {
		cards = append(cards, NewCard(record))
	}
	return View{Table: g.table, Cards: cards}
}

// Lookup finds a record in the current snapshot.
func (g *Gallery) Lookup(ctx context.Context, id records.RecordID) (records.Record, error) {
	snapshot, err := g.cache.Get(ctx, g.table)
	if err != nil {
		return records.Record{}, err
	}
	record, ok := snapshot.Find(id)
	if !ok {
		return records.Record{}, records.ErrRecordNotFound
	}
	return record, nil
}

// RequestCreate opens an empty form.
func (g *Gallery) RequestCreate() (*forms.Controller, error) {
	controller, err := forms.NewController(g.table, g.forms)
	if err != nil {
		return nil, err
	}
	if err := controller.OpenCreate(); err != nil {
		return nil, err
	}
	return controller, nil
}

// RequestEdit opens a form prefilled from the cached record.
func (g *Gallery) RequestEdit(ctx context.Context, id records.RecordID) (*forms.Controller, error) {
	record, err := g.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	controller, err := forms.NewController(g.table, g.forms)
	if err != nil {
		return nil, err
	}
	if err := controller.OpenEdit(record); err != nil {
		return nil, err
	}
	return controller, nil
}

// RequestDelete starts the confirmation step. Nothing is deleted until
// ConfirmDelete is called with the returned token.
func (g *Gallery) RequestDelete(ctx context.Context, id records.RecordID) (DeleteConfirmation, error) {
	record, err := g.Lookup(ctx, id)
	if err != nil {
		return DeleteConfirmation{}, err
	}
	token, expiresAt, err := g.confirmer.Issue(g.table, id)
	if err != nil {
		return DeleteConfirmation{}, err
	}
	return DeleteConfirmation{Record: record, Token: token, ExpiresAt: expiresAt}, nil
}

// ConfirmDelete deletes the record named by an acknowledged confirmation and
// invalidates the cache. A failed delete leaves the cache untouched.
func (g *Gallery) ConfirmDelete(ctx context.Context, id records.RecordID, token string) error {
	if err := g.confirmer.Verify(token, g.table, id); err != nil {
		return err
	}
	if err := g.forms.Rows.Delete(ctx, g.table, id); err != nil {
		g.logger.Warn("record delete failed",
			zap.String("table", g.table.String()),
			zap.String("record_id", id.String()),
			zap.Error(err))
		return &forms.WriteError{Table: g.table, Err: err}
	}
	g.cache.Invalidate(g.table)
	if g.forms.Notifier != nil {
		g.forms.Notifier.Notify(ctx, changes.Notice{Table: g.table, Kind: changes.KindDeleted, RecordID: id})
	}
	g.logger.Info("record deleted", zap.String("table", g.table.String()), zap.String("record_id", id.String()))
	return nil
}

// NewCard renders one record.
func NewCard(record records.Record) Card {
	card := Card{
		ID:          record.ID.String(),
		Title:       record.Title,
		Description: record.Description,
		ImageURL:    record.ImageURL,
	}
	switch record.Table {
	case records.TableProjects:
		card.LinkURL = record.GithubLink
	case records.TableEvents:
		card.DateLabel = FormatEventDate(record.EventDate)
	}
	return card
}

// FormatEventDate renders YYYY-MM-DD as "March 15, 2025", passing other input through.
func FormatEventDate(raw string) string {
	parsed, err := time.Parse(forms.EventDateLayout, raw)
	if err != nil {
		return raw
	}
	return parsed.Format("January 2, 2006")
}
