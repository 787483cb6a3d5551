/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

const themeKey = "theme"

// The category and theme endpoints are the persistence boundary: they
// are the only callers allowed to mutate what the store holds, and a
// storage failure here never reaches a running match.

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf(cfg, "SERVE: Encoding response failed: %v", err)
	}
}

func serveCategoryList(cfg *Config, categories *Categories) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, categories.List())
	}
}

func addCustomCategory(cfg *Config, categories *Categories) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			Name  string   `json:"name"`
			Icon  string   `json:"icon"`
			Words []string `json:"words"`
		}

		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		cat, err := categories.AddCustom(req.Name, req.Icon, req.Words)
		if errors.Is(err, errTooFewWords) {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err != nil {
			writeJSON(cfg, w, http.StatusInternalServerError, map[string]string{"error": "unable to add category"})
			return
		}

		logf(cfg, "STORE: Added custom category %q (%s)", cat.Name, cat.ID)
		writeJSON(cfg, w, http.StatusCreated, cat)
	}
}

func deleteCustomCategory(cfg *Config, categories *Categories) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if !categories.DeleteCustom(id) {
			writeJSON(cfg, w, http.StatusNotFound, map[string]string{"error": "no such custom category"})
			return
		}

		logf(cfg, "STORE: Deleted custom category %s", id)
		writeJSON(cfg, w, http.StatusOK, map[string]string{"deleted": id})
	}
}

// serveTheme returns the stored theme preference blob, or {} when none
// has been saved yet.
func serveTheme(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, ok, err := store.Load(themeKey)
		if err != nil {
			logf(cfg, "STORE: Loading theme failed: %v", err)
			ok = false
		}
		if !ok {
			data = []byte("{}")
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)
		_, _ = w.Write(data)
	}
}

func saveTheme(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<12))
		if err != nil || !json.Valid(data) {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		// Best-effort: the in-memory theme lives client-side, so a
		// failed save only costs durability.
		go func() {
			if err := store.Save(themeKey, data); err != nil {
				logf(cfg, "STORE: Saving theme failed: %v", err)
			}
		}()

		writeJSON(cfg, w, http.StatusAccepted, map[string]string{"status": "saving"})
	}
}

func registerAPI(cfg *Config, mux *httprouter.Router, store *Store, categories *Categories) {
	mux.GET(cfg.prefix+"/api/categories", serveCategoryList(cfg, categories))
	mux.POST(cfg.prefix+"/api/categories", addCustomCategory(cfg, categories))
	mux.DELETE(cfg.prefix+"/api/categories/:id", deleteCustomCategory(cfg, categories))

	mux.GET(cfg.prefix+"/api/theme", serveTheme(cfg, store))
	mux.PUT(cfg.prefix+"/api/theme", saveTheme(cfg, store))
}
