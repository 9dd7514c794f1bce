package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"jewelshot/internal/batch"
	"jewelshot/internal/domain"
	"jewelshot/internal/storage"
	"jewelshot/pkg/zip"
)

type createBatchRequest struct {
	Name      string          `json:"name"`
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
	Images    []string        `json:"images"`
}

type batchView struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Operation string              `json:"operation"`
	Status    string              `json:"status"`
	Total     int                 `json:"total"`
	Images    []domain.BatchImage `json:"images"`
}

func (a *App) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	kind, err := domain.ParseOperationKind(req.Operation)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	project, units, err := a.Batches.CreateBatch(r.Context(), batch.CreateRequest{
		UserID:  a.currentUserID(r),
		Name:    req.Name,
		Kind:    kind,
		Params:  req.Params,
		Sources: req.Images,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	for i := range units {
		units[i].BatchID = project.ID
		units[i].Status = domain.UnitStatusPending
	}
	a.json(w, http.StatusCreated, batchView{
		ID:        project.ID,
		Name:      project.Name,
		Operation: string(project.Kind),
		Status:    string(domain.BatchStatusProcessing),
		Total:     len(units),
		Images:    units,
	})
}

func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	progress, err := a.Batches.Snapshot(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, progress)
}

// ProcessNext runs one pending unit. The body is optional and carries the
// preset whose name labels the result.
func (a *App) ProcessNext(w http.ResponseWriter, r *http.Request) {
	var preset batch.Preset
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&preset); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgInvalidPayload)
		return
	}
	progress, err := a.Batches.ProcessNext(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r), preset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, progress)
}

// BatchArchive downloads every completed result of the batch as one zip.
// Results that cannot be fetched are left out.
func (a *App) BatchArchive(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	project, units, err := a.Batches.Results(r.Context(), batchID, a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := make([]zip.Asset, 0, len(units))
	for i, unit := range units {
		data, err := storage.Fetch(r.Context(), a.Objects, a.HTTP, unit.ResultURL)
		if err != nil {
			a.Logger.Warn().Err(err).Str("batch_id", batchID).Str("unit_id", unit.ID).Msg("http: archive fetch failed")
			continue
		}
		asset := zip.Asset{Filename: archiveName(i, unit, http.DetectContentType(data)), Data: data}
		if unit.CompletedAt != nil {
			asset.Modified = *unit.CompletedAt
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		a.error(w, r, http.StatusNotFound, "no_results", msgNoResults)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug(project.Name, "batch")+".zip"))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Error().Err(err).Str("batch_id", batchID).Msg("http: write archive failed")
	}
}

func archiveName(i int, unit domain.BatchImage, contentType string) string {
	name := fmt.Sprintf("%03d", i+1)
	if unit.Label != "" {
		name += "-" + slug(unit.Label, "")
	}
	return name + "." + storage.ExtensionFor(contentType)
}

func slug(s, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
