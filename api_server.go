package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBody = 1 << 20

// apiResponse is the envelope of every API answer.
type apiResponse struct {
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

type layerView struct {
	Schema   string       `json:"schema"`
	Table    string       `json:"table"`
	Kind     GeometryKind `json:"kind"`
	Features int          `json:"features"`
	Bounds   [4]float64   `json:"bounds"` // west, north, east, south
	Tiles    string       `json:"tiles"`
}

type importRequest struct {
	Locator string `json:"locator"`
}

// newAPIRouter exposes the query and control operations as JSON over HTTP.
func newAPIRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Message: "geoferry api " + version})
	})
	r.Get("/layers", a.handleLayers)
	r.Post("/geometry", a.handleGeometry)
	r.Post("/wkt", a.handleWKT)
	r.Post("/connect", a.handleConnect)
	r.Post("/import", a.handleImport)
	r.Post("/sync", a.handleSync)
	return r
}

func (a *App) handleLayers(w http.ResponseWriter, r *http.Request) {
	entries := a.Layers()
	views := make([]layerView, 0, len(entries))
	for _, e := range entries {
		views = append(views, layerView{
			Schema:   e.Table.Schema,
			Table:    e.Table.Name,
			Kind:     e.Kind,
			Features: e.Features,
			Bounds:   [4]float64{e.Bounds.West, e.Bounds.North, e.Bounds.East, e.Bounds.South},
			Tiles:    fmt.Sprintf("/map/%s/{z}/{x}/{y}.png", e.Table),
		})
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: fmt.Sprintf("%d layers", len(views)), Result: views})
}

func (a *App) handleGeometry(w http.ResponseWriter, r *http.Request) {
	var q BBoxQuery
	if !decodeBody(w, r, &q) {
		return
	}
	gs, err := a.queryIntersections(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: "ok", Result: geometriesAsFeatureCollection(gs)})
}

func (a *App) handleWKT(w http.ResponseWriter, r *http.Request) {
	var q BBoxQuery
	if !decodeBody(w, r, &q) {
		return
	}
	gs, err := a.queryIntersections(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	texts, err := geometriesAsWKT(gs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: "ok", Result: texts})
}

func (a *App) handleConnect(w http.ResponseWriter, r *http.Request) {
	var c ConnectionConfig
	if !decodeBody(w, r, &c) {
		return
	}
	out, err := a.Connect(r.Context(), c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: "connected to " + c.Redacted(), Result: out})
}

func (a *App) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Locator == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "locator is required"})
		return
	}
	res, err := a.Import(r.Context(), req.Locator)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Message: fmt.Sprintf("%d layers imported, %d failed", len(res.Layers), len(res.Failures)),
		Result:  res,
	})
}

func (a *App) handleSync(w http.ResponseWriter, r *http.Request) {
	out, err := a.Sync(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Message: "synced", Result: out})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps pipeline errors onto HTTP status codes. Anything
// unclassified is treated as a store failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownDriver), errors.Is(err, ErrOpenFailed), errors.Is(err, ErrNoLayers):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidParams):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log.Printf("  %s %s: %d %v [%s]", r.Method, r.URL.Path, status, err, middleware.GetReqID(r.Context()))
	writeJSON(w, status, apiResponse{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("  encode response: %v", err)
	}
}
