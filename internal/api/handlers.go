package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/andresmejia3/redactor/internal/accumulate"
	"github.com/andresmejia3/redactor/internal/assemble"
	"github.com/andresmejia3/redactor/internal/chunk"
	"github.com/andresmejia3/redactor/internal/storage"
	"github.com/andresmejia3/redactor/internal/store"
	"github.com/andresmejia3/redactor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// maxBodySize caps request documents; chunk bodies carry keys, not frames.
const maxBodySize = 1 << 20

type App struct {
	Objects     storage.ObjectStore
	Catalogs    store.CatalogStore
	Processor   *chunk.Processor
	Accumulator *accumulate.Accumulator
	Assembler   *assemble.Assembler
	Log         logrus.FieldLogger
}

// ChunkRequest asks a worker to redact one chunk.
type ChunkRequest struct {
	ChunkKey      string                 `json:"chunk_key"`
	DetectionsKey string                 `json:"detections_key"`
	ChunkIndex    int                    `json:"chunk_index"`
	Request       types.RedactionRequest `json:"request"`
}

type ExpectRequest struct {
	Chunks int `json:"chunks"`
}

type StitchRequest struct {
	RedactionType string `json:"redaction_type"`
}

type StitchResponse struct {
	Key     string                     `json:"key"`
	Catalog types.RedactedVideoCatalog `json:"catalog"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (app *App) ChunkHandler(w http.ResponseWriter, r *http.Request) {
	asset, workflow := chi.URLParam(r, "asset"), chi.URLParam(r, "workflow")

	var req ChunkRequest
	if err := decodeBody(w, r, &req); err != nil {
		app.renderError(w, r, types.NewStageError("blur", asset, types.ErrInput, err))
		return
	}
	if req.ChunkKey == "" {
		app.renderError(w, r, types.NewStageError("blur", asset, types.ErrInput, errors.New("chunk_key is required")))
		return
	}

	desc, err := chunk.LoadChunk(r.Context(), app.Objects, req.ChunkKey, req.DetectionsKey, req.ChunkIndex, req.Request.WithDefaults())
	if err != nil {
		app.renderError(w, r, types.NewStageError("load", asset, types.ErrInput, err))
		return
	}
	res, err := app.Processor.Process(r.Context(), asset, workflow, desc, req.Request)
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	if err := app.Accumulator.RecordChunk(r.Context(), asset, workflow, res); err != nil {
		app.renderError(w, r, err)
		return
	}
	app.renderJSON(w, http.StatusOK, res)
}

func (app *App) ExpectHandler(w http.ResponseWriter, r *http.Request) {
	asset, workflow := chi.URLParam(r, "asset"), chi.URLParam(r, "workflow")

	var req ExpectRequest
	if err := decodeBody(w, r, &req); err != nil {
		app.renderError(w, r, types.NewStageError("expect chunks", asset, types.ErrInput, err))
		return
	}
	if err := app.Accumulator.ExpectChunks(r.Context(), asset, workflow, req.Chunks); err != nil {
		app.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StitchHandler coalesces the workflow's chunks, encodes the video and
// records it in the asset's video catalog.
func (app *App) StitchHandler(w http.ResponseWriter, r *http.Request) {
	asset, workflow := chi.URLParam(r, "asset"), chi.URLParam(r, "workflow")

	var req StitchRequest
	if err := decodeBody(w, r, &req); err != nil {
		app.renderError(w, r, types.NewStageError("stitch", asset, types.ErrInput, err))
		return
	}
	if req.RedactionType == "" {
		app.renderError(w, r, types.NewStageError("stitch", asset, types.ErrInput, errors.New("redaction_type is required")))
		return
	}

	cat, err := app.Accumulator.Coalesce(r.Context(), asset, workflow)
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	key, err := app.Assembler.Assemble(r.Context(), asset, req.RedactionType, cat)
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	videos, err := app.Accumulator.RecordVideo(r.Context(), asset, req.RedactionType, key)
	if err != nil {
		app.renderError(w, r, err)
		return
	}
	app.renderJSON(w, http.StatusOK, StitchResponse{Key: key, Catalog: videos})
}

func (app *App) FramesHandler(w http.ResponseWriter, r *http.Request) {
	asset, workflow := chi.URLParam(r, "asset"), chi.URLParam(r, "workflow")

	cat, err := app.Catalogs.GetFrameCatalog(r.Context(), asset, workflow)
	if errors.Is(err, store.ErrNotFound) {
		app.renderJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no frame catalog for workflow %s", workflow)})
		return
	}
	if err != nil {
		app.renderError(w, r, types.NewStageError("catalog", asset, types.ErrStorage, err))
		return
	}
	app.renderJSON(w, http.StatusOK, cat)
}

func (app *App) VideosHandler(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	cat, _, err := app.Catalogs.GetVideoCatalog(r.Context(), asset)
	if err != nil {
		app.renderError(w, r, types.NewStageError("catalog", asset, types.ErrStorage, err))
		return
	}
	app.renderJSON(w, http.StatusOK, cat)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", types.ErrInput, err)
	}
	return nil
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrIncomplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorResponse{Error: err.Error()}
	var stageErr *types.StageError
	if errors.As(err, &stageErr) {
		body.Stage = stageErr.Stage
	}

	entry := app.Log.WithError(err).WithField("status", status)
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		entry = entry.WithField("request_id", id)
	}
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	app.renderJSON(w, status, body)
}

func (app *App) renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Log.WithError(err).Warn("Failed to write response")
	}
}
