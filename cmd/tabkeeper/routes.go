// CLAUDE:SUMMARY HTTP control-port routes — chi router, shield middleware stack, JSON handlers for every page operation.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/tabkeeper"
	"github.com/hazyhaar/tabkeeper/internal/shield"
)

// newRouter builds the control-port handler. The rate limiter reads its
// rules from the session store's rate_limits table; without a store it
// allows everything. done stops its background reloader.
func newRouter(k *tabkeeper.Keeper, cfg *tabkeeper.Config, logger *slog.Logger, done <-chan struct{}) http.Handler {
	var db *sql.DB
	if s := k.Store(); s != nil {
		db = s.DB
	}
	rl := shield.NewRateLimiter(db, "/healthz")
	rl.StartReloader(done)

	r := chi.NewRouter()
	r.Use(shield.TraceID)
	r.Use(shield.SecurityHeaders())
	r.Use(shield.MaxBody(1 << 20))
	r.Use(shield.BearerAuth(cfg.Auth.Token, cfg.Auth.TokenHash))
	r.Use(rl.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, k.Status(req.Context()))
		})

		r.Get("/pages", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"pages": k.ListPages(req.Context())})
		})

		r.Route("/pages/{name}", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, req *http.Request) {
				info, created, err := k.ResolvePage(req.Context(), chi.URLParam(req, "name"))
				if err != nil {
					writeErr(w, err)
					return
				}
				status := http.StatusOK
				if created {
					status = http.StatusCreated
				}
				writeJSON(w, status, info)
			})

			r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
				name := chi.URLParam(req, "name")
				if err := k.ClosePage(req.Context(), name); err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "name": name})
			})

			r.Post("/snapshot", func(w http.ResponseWriter, req *http.Request) {
				res, err := k.Snapshot(req.Context(), chi.URLParam(req, "name"))
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Get("/snapshots", func(w http.ResponseWriter, req *http.Request) {
				entries, err := k.SnapshotHistory(req.Context(), chi.URLParam(req, "name"), queryInt(req, "limit", 20))
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"snapshots": entries})
			})

			r.Get("/refs/{ref}", func(w http.ResponseWriter, req *http.Request) {
				ref, err := k.ResolveRef(req.Context(), chi.URLParam(req, "name"), chi.URLParam(req, "ref"))
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, ref)
			})

			r.Post("/navigate", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					URL string `json:"url"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				info, err := k.Navigate(req.Context(), chi.URLParam(req, "name"), body.URL)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, info)
			})

			r.Post("/click", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Ref string `json:"ref"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				res, err := k.Click(req.Context(), chi.URLParam(req, "name"), body.Ref)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Post("/type", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Ref    string `json:"ref"`
					Text   string `json:"text"`
					Submit bool   `json:"submit"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				res, err := k.Type(req.Context(), chi.URLParam(req, "name"), body.Ref, body.Text, body.Submit)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Post("/eval", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Expression string `json:"expression"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				res, err := k.Eval(req.Context(), chi.URLParam(req, "name"), body.Expression)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Post("/screenshot", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Path     string `json:"path"`
					FullPage bool   `json:"full_page"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				res, err := k.Screenshot(req.Context(), chi.URLParam(req, "name"), body.Path, body.FullPage)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Post("/pdf", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Path string `json:"path"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				res, err := k.PDF(req.Context(), chi.URLParam(req, "name"), body.Path)
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Get("/markdown", func(w http.ResponseWriter, req *http.Request) {
				res, err := k.Markdown(req.Context(), chi.URLParam(req, "name"))
				if err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, res)
			})

			r.Post("/wait", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					State     string `json:"state"`
					TimeoutMs int64  `json:"timeout_ms"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, errBody("invalid_input", err))
					return
				}
				timeout := time.Duration(body.TimeoutMs) * time.Millisecond
				if err := k.Wait(req.Context(), chi.URLParam(req, "name"), body.State, timeout); err != nil {
					writeErr(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": body.State})
			})
		})
	})

	return r
}

// writeErr maps the keeper's sentinel errors onto HTTP statuses. Anything
// unmapped is a browser failure: the request was fine, the page wasn't.
func writeErr(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, tabkeeper.ErrInvalidName):
		status, code = http.StatusBadRequest, "invalid_name"
	case errors.Is(err, tabkeeper.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, tabkeeper.ErrPathTraversal):
		status, code = http.StatusBadRequest, "path_traversal"
	case errors.Is(err, tabkeeper.ErrPageNotFound):
		status, code = http.StatusNotFound, "page_not_found"
	case errors.Is(err, tabkeeper.ErrNoSnapshot):
		status, code = http.StatusConflict, "no_snapshot"
	case errors.Is(err, tabkeeper.ErrRefNotFound):
		status, code = http.StatusConflict, "ref_not_found"
	default:
		status, code = http.StatusBadGateway, "browser_failure"
	}
	writeJSON(w, status, errBody(code, err))
}

func errBody(code string, err error) map[string]string {
	return map[string]string{"error": err.Error(), "code": code}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
