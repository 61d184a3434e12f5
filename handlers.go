package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwv/reskin/catalog"
	"github.com/kwv/reskin/configurator"
	"github.com/kwv/reskin/material"
	"github.com/kwv/reskin/scene"
)

var requestValidator = validator.New()

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type itemRequest struct {
	ItemID string `json:"itemId"`
}

type assignRequest struct {
	Slot   string `json:"slot" validate:"required"`
	Preset string `json:"preset" validate:"required"`
}

type assignResponse struct {
	Applied  bool                    `json:"applied"`
	Edits    []scene.EditDescriptor  `json:"edits"`
	Panel    []configurator.SlotView `json:"panel"`
	Warnings []string                `json:"warnings,omitempty"`
}

type variantRequest struct {
	Name string `json:"name"`
}

type platformRequest struct {
	AR bool `json:"ar"`
}

// newHTTPServer creates the API handler with all endpoints.
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Presets   int       `json:"presets"`
			Items     int       `json:"items"`
			Sessions  int       `json:"sessions"`
			MQTT      bool      `json:"mqtt"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Presets:   a.Library.Len(),
			Items:     a.Catalog.Len(),
			Sessions:  a.Sessions.Len(),
			MQTT:      a.MQTT != nil && a.MQTT.IsConnected(),
		})
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(a.Prom, promhttp.HandlerOpts{}))

	if dir := a.Config.Assets.Dir; dir != "" {
		files := http.FileServer(http.Dir(dir))
		mux.Handle("GET /models/", files)
		mux.Handle("GET /maps/", files)
	}

	mux.HandleFunc("GET /api/viewer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Config.Viewer)
	})

	// Catalog
	mux.HandleFunc("GET /api/furniture", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, a.Catalog.Filter(catalog.Filter{
			Supplier: q.Get("supplier"),
			Category: q.Get("category"),
			Color:    q.Get("color"),
			Query:    q.Get("q"),
		}))
	})
	mux.HandleFunc("GET /api/furniture/facets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Catalog.Facets())
	})
	mux.HandleFunc("GET /api/furniture/{id}", func(w http.ResponseWriter, r *http.Request) {
		item, ok := a.Catalog.Get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "ItemNotFound", "No such item")
			return
		}
		writeJSON(w, http.StatusOK, item)
	})

	// Materials
	mux.HandleFunc("GET /api/materials", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Library.All())
	})
	mux.HandleFunc("GET /api/slots/{category}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Slots.SlotsFor(r.PathValue("category")))
	})
	mux.HandleFunc("GET /api/slots/{category}/swatches.svg", func(w http.ResponseWriter, r *http.Request) {
		serveSwatches(w, a, r.PathValue("category"), "image/svg+xml", (*material.SwatchSheet).RenderSVG)
	})
	mux.HandleFunc("GET /api/slots/{category}/swatches.png", func(w http.ResponseWriter, r *http.Request) {
		serveSwatches(w, a, r.PathValue("category"), "image/png", (*material.SwatchSheet).RenderPNG)
	})

	// Sessions
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		s := a.openSession()
		writeJSON(w, http.StatusCreated, s.State())
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Sessions.List())
	})
	mux.HandleFunc("GET /api/sessions/{id}", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		writeJSON(w, http.StatusOK, s.State())
	}))
	mux.HandleFunc("DELETE /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !a.closeSession(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, "SessionNotFound", "No such session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /api/sessions/{id}/item", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		var req itemRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := a.setItem(r.Context(), s, req.ItemID); err != nil {
			if errors.Is(err, errUnknownItem) {
				writeError(w, http.StatusNotFound, "ItemNotFound", err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, "AssetLoadFailed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.State())
	}))

	mux.HandleFunc("POST /api/sessions/{id}/assign", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		var req assignRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ok, err := s.Assign(r.Context(), req.Slot, req.Preset)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "InvalidAssignment",
				fmt.Sprintf("preset %q is not allowed for slot %q", req.Preset, req.Slot))
			return
		}
		resp := assignResponse{Applied: true, Edits: s.Edits(), Panel: s.Panel()}
		if err != nil {
			resp.Warnings = warnings(err)
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	mux.HandleFunc("GET /api/sessions/{id}/edits", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		writeJSON(w, http.StatusOK, s.Edits())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/panel", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		writeJSON(w, http.StatusOK, s.Panel())
	}))

	mux.HandleFunc("PUT /api/sessions/{id}/variant", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		var req variantRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s.SelectVariant(req.Name)
		writeJSON(w, http.StatusOK, s.Introspect())
	}))

	mux.HandleFunc("GET /api/sessions/{id}/scene", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		writeJSON(w, http.StatusOK, s.Introspect())
	}))
	mux.HandleFunc("GET /api/sessions/{id}/scene.glb", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		var buf bytes.Buffer
		if err := s.WriteGLB(&buf); err != nil {
			switch {
			case errors.Is(err, scene.ErrSceneUnavailable):
				writeError(w, http.StatusConflict, "SceneUnavailable", "No scene loaded")
			case errors.Is(err, scene.ErrNotSupported):
				writeError(w, http.StatusNotImplemented, "NotSupported", "Scene cannot be exported")
			default:
				log.Printf("[HTTP] export scene for session %s: %v", s.ID, err)
				writeError(w, http.StatusInternalServerError, "ExportFailed", err.Error())
			}
			return
		}
		w.Header().Set("Content-Type", "model/gltf-binary")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	}))

	mux.HandleFunc("PUT /api/sessions/{id}/platform", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		var req platformRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s.SetPlatformAR(req.AR)
		w.WriteHeader(http.StatusAccepted)
	}))
	mux.HandleFunc("POST /api/sessions/{id}/ar", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		if !s.ActivateAR() {
			writeError(w, http.StatusConflict, "ARUnavailable", "AR is not available for this session")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"activated": true})
	}))

	mux.HandleFunc("GET /ws/{id}", withSession(a, func(w http.ResponseWriter, r *http.Request, s *configurator.Session) {
		a.Hub.Serve(w, r, s.ID, outbound{Type: "state", Data: s.State()}, func(c *viewerConn, msg *inbound) {
			a.handleViewerMessage(s, c, msg)
		})
	}))

	handler := rateLimitMiddleware(a.Config.HTTP.RateLimit.Limit, a.Config.HTTP.RateLimit.Window)(mux)
	return corsMiddleware(a.Config.HTTP.AllowedOrigins)(handler)
}

// handleViewerMessage applies one websocket message to the session.
func (a *App) handleViewerMessage(s *configurator.Session, c *viewerConn, msg *inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg.Type {
	case "ping":
		c.reply(outbound{Type: "pong", ID: msg.ID})
	case "state":
		c.reply(outbound{Type: "state", ID: msg.ID, Data: s.State()})
	case "platform":
		var req platformRequest
		if !decodeData(c, msg, &req) {
			return
		}
		s.SetPlatformAR(req.AR)
	case "item":
		var req itemRequest
		if !decodeData(c, msg, &req) {
			return
		}
		if err := a.setItem(ctx, s, req.ItemID); err != nil {
			c.replyError(msg.ID, "SetItemFailed", err.Error())
			return
		}
		c.reply(outbound{Type: "state", ID: msg.ID, Data: s.State()})
	case "assign":
		var req assignRequest
		if !decodeData(c, msg, &req) {
			return
		}
		ok, err := s.Assign(ctx, req.Slot, req.Preset)
		if !ok {
			c.replyError(msg.ID, "InvalidAssignment", fmt.Sprintf("preset %q is not allowed for slot %q", req.Preset, req.Slot))
			return
		}
		resp := assignResponse{Applied: true, Edits: s.Edits(), Panel: s.Panel()}
		if err != nil {
			resp.Warnings = warnings(err)
		}
		c.reply(outbound{Type: "assigned", ID: msg.ID, Data: resp})
	case "variant":
		var req variantRequest
		if !decodeData(c, msg, &req) {
			return
		}
		s.SelectVariant(req.Name)
	case "ar":
		c.reply(outbound{Type: "ar", ID: msg.ID, Data: map[string]bool{"activated": s.ActivateAR()}})
	default:
		c.replyError(msg.ID, "UnknownMessageType", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func withSession(a *App, fn func(http.ResponseWriter, *http.Request, *configurator.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.Sessions.Get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "SessionNotFound", "No such session")
			return
		}
		fn(w, r, s)
	}
}

func serveSwatches(w http.ResponseWriter, a *App, category, contentType string, render func(*material.SwatchSheet, io.Writer) error) {
	slots := a.Slots.SlotsFor(category)
	if len(slots) == 0 {
		writeError(w, http.StatusNotFound, "CategoryNotFound", "No slots for category")
		return
	}
	var buf bytes.Buffer
	if err := render(material.NewSwatchSheet(slots, a.Library), &buf); err != nil {
		log.Printf("[HTTP] render swatches for %s: %v", category, err)
		writeError(w, http.StatusInternalServerError, "RenderFailed", err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(buf.Bytes())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return false
	}
	if err := requestValidator.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", validationSummary(err))
		return false
	}
	return true
}

func decodeData(c *viewerConn, msg *inbound, v any) bool {
	if len(msg.Data) == 0 {
		c.replyError(msg.ID, "InvalidMessageFormat", "Missing data")
		return false
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.replyError(msg.ID, "InvalidMessageFormat", "Invalid data")
		return false
	}
	if err := requestValidator.Struct(v); err != nil {
		c.replyError(msg.ID, "ValidationError", validationSummary(err))
		return false
	}
	return true
}

func validationSummary(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// warnings flattens a joined error into its messages.
func warnings(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
