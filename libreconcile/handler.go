package libreconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/pkg/jsonerr"
)

var _ http.Handler = (*HTTP)(nil)

type HTTP struct {
	*http.ServeMux
	l *Libreconcile
}

func NewHandler(l *Libreconcile) *HTTP {
	h := &HTTP{l: l}
	m := http.NewServeMux()
	m.HandleFunc("/reconcile", h.Reconcile)
	m.HandleFunc("/reconcile_batch", h.ReconcileBatch)
	m.HandleFunc("/package", h.PackageByPURL)
	m.HandleFunc("/package/", h.Package)
	h.ServeMux = m
	return h
}

func (h *HTTP) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		resp := &jsonerr.Response{
			Code:    "method-not-allowed",
			Message: "endpoint only allows POST",
		}
		jsonerr.Error(w, resp, http.StatusMethodNotAllowed)
		return
	}

	var obs purldb.Observation
	err := json.NewDecoder(r.Body).Decode(&obs)
	if err != nil {
		resp := &jsonerr.Response{
			Code:    "bad-request",
			Message: fmt.Sprintf("could not deserialize observation: %v", err),
		}
		zlog.Debug(ctx).Err(err).Msg("could not deserialize observation")
		jsonerr.Error(w, resp, http.StatusBadRequest)
		return
	}

	res, err := h.l.Reconcile(ctx, &obs, obs.MiningLevel)
	if err != nil {
		code, status := "reconcile-error", http.StatusInternalServerError
		switch {
		case errors.Is(err, purldb.ErrPrecondition), errors.Is(err, purldb.ErrInvalid):
			code, status = "bad-request", http.StatusBadRequest
		case errors.Is(err, purldb.ErrConflict):
			code, status = "conflict", http.StatusConflict
		}
		resp := &jsonerr.Response{
			Code:    code,
			Message: err.Error(),
		}
		zlog.Error(ctx).Err(err).Msg("reconcile failed")
		jsonerr.Error(w, resp, status)
		return
	}

	w.Header().Set("content-type", "application/json")
	switch {
	case res.Created:
		w.Header().Set("location", path.Join("/package", res.Package.UUID.String()))
		w.WriteHeader(http.StatusCreated)
	default:
		// Merges and soft rejections both report OK; the body says which.
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to serialize result")
	}
}

func (h *HTTP) ReconcileBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		resp := &jsonerr.Response{
			Code:    "method-not-allowed",
			Message: "endpoint only allows POST",
		}
		jsonerr.Error(w, resp, http.StatusMethodNotAllowed)
		return
	}

	var batch struct {
		MiningLevel  int                   `json:"mining_level"`
		Observations []*purldb.Observation `json:"observations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		resp := &jsonerr.Response{
			Code:    "bad-request",
			Message: fmt.Sprintf("could not deserialize batch: %v", err),
		}
		zlog.Debug(ctx).Err(err).Msg("could not deserialize batch")
		jsonerr.Error(w, resp, http.StatusBadRequest)
		return
	}

	results, err := h.l.ReconcileBatch(ctx, batch.Observations, batch.MiningLevel)
	if err != nil {
		resp := &jsonerr.Response{
			Code:    "reconcile-error",
			Message: err.Error(),
		}
		zlog.Error(ctx).Err(err).Msg("batch reconcile failed")
		jsonerr.Error(w, resp, http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to serialize results")
	}
}

// PackageByPURL serves the "/package?purl=..." lookup.
func (h *HTTP) PackageByPURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		resp := &jsonerr.Response{
			Code:    "method-not-allowed",
			Message: "endpoint only allows GET",
		}
		jsonerr.Error(w, resp, http.StatusMethodNotAllowed)
		return
	}

	purl := r.URL.Query().Get("purl")
	if purl == "" {
		resp := &jsonerr.Response{
			Code:    "bad-request",
			Message: `query parameter "purl" is required`,
		}
		jsonerr.Error(w, resp, http.StatusBadRequest)
		return
	}
	pkg, err := h.l.PackageByPURL(ctx, purl)
	if err != nil {
		if errors.Is(err, purldb.ErrInvalid) {
			resp := &jsonerr.Response{
				Code:    "bad-request",
				Message: err.Error(),
			}
			jsonerr.Error(w, resp, http.StatusBadRequest)
			return
		}
		resp := &jsonerr.Response{
			Code:    "internal-server-error",
			Message: err.Error(),
		}
		zlog.Warn(ctx).Err(err).Msg("package lookup failed")
		jsonerr.Error(w, resp, http.StatusInternalServerError)
		return
	}
	if pkg == nil {
		resp := &jsonerr.Response{
			Code:    "not-found",
			Message: fmt.Sprintf("package for %q does not exist", purl),
		}
		jsonerr.Error(w, resp, http.StatusNotFound)
		return
	}

	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(pkg); err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to serialize package")
	}
}

// Package serves "/package/{uuid}" and its "enhanced" and "history"
// sub-resources.
func (h *HTTP) Package(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		resp := &jsonerr.Response{
			Code:    "method-not-allowed",
			Message: "endpoint only allows GET",
		}
		jsonerr.Error(w, resp, http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/package/")
	idStr, sub, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		resp := &jsonerr.Response{
			Code:    "bad-request",
			Message: "could not find package uuid in path",
		}
		zlog.Debug(ctx).Str("path", r.URL.Path).Msg(resp.Message)
		jsonerr.Error(w, resp, http.StatusBadRequest)
		return
	}
	ctx = zlog.ContextWithValues(ctx, "package", id.String())

	pkg, err := h.l.PackageByUUID(ctx, id)
	if err != nil {
		const msg = "error retrieving package"
		resp := &jsonerr.Response{
			Code:    "package",
			Message: msg,
		}
		zlog.Warn(ctx).Err(err).Msg(msg)
		jsonerr.Error(w, resp, http.StatusInternalServerError)
		return
	}
	if pkg == nil {
		resp := &jsonerr.Response{
			Code:    "not-found",
			Message: fmt.Sprintf("package %v does not exist", id),
		}
		zlog.Debug(ctx).Msg("package does not exist")
		jsonerr.Error(w, resp, http.StatusNotFound)
		return
	}

	var body interface{}
	switch sub {
	case "":
		body = pkg
	case "enhanced":
		body, err = h.l.EnhancedPackage(ctx, pkg)
	case "history":
		body, err = h.l.History(ctx, pkg)
	case "sets":
		body, err = h.l.PackageSets(ctx, pkg)
	default:
		resp := &jsonerr.Response{
			Code:    "not-found",
			Message: fmt.Sprintf("no such resource %q", sub),
		}
		jsonerr.Error(w, resp, http.StatusNotFound)
		return
	}
	if err != nil {
		resp := &jsonerr.Response{
			Code:    "internal-server-error",
			Message: err.Error(),
		}
		zlog.Warn(ctx).Err(err).Msg("package read failed")
		jsonerr.Error(w, resp, http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error(ctx).Err(err).Msg("failed to serialize response")
	}
}
