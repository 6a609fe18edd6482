// Package server exposes scratchpad documents over a JSON API and streams version
// changes over Server-Sent Events.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/repository"
	"github.com/debemdeboas/scratchpad/internal/routes"
	"github.com/debemdeboas/scratchpad/internal/sse"
)

type Server struct {
	store           repository.Store
	clients         *sse.Clients
	logger          zerolog.Logger
	maxContentBytes int
	corsOrigins     []string
}

func New(store repository.Store, clients *sse.Clients, cfg config.ServerConfig, logger zerolog.Logger) *Server {
	return &Server{
		store:           store,
		clients:         clients,
		logger:          logger,
		maxContentBytes: cfg.MaxContentBytes,
		corsOrigins:     cfg.CORSOrigins,
	}
}

// Handler returns the routed API wrapped in logging, CORS and security header middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET "+routes.APIScratchpads, s.serveList)
	mux.HandleFunc(routes.APIScratchpad, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.serveGet(w, r)
		case http.MethodPut:
			s.servePut(w, r)
		default:
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("GET "+routes.SSEPath, s.serveEvents)

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{config.HCType, sse.HClientID},
	})

	var h http.Handler = secureHeaders(mux.ServeHTTP)
	h = c.Handler(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	return hlog.NewHandler(s.logger)(h)
}

// NotifyVersion tells event stream clients that doc reached version. Version 0 means
// the document changed to an unknown version.
func (s *Server) NotifyVersion(doc model.DocumentID, version model.Version) {
	s.clients.BroadcastVersion(doc, version)
}

func (s *Server) documentID(w http.ResponseWriter, raw string) (model.DocumentID, bool) {
	id := model.DocumentID(raw)
	if err := id.Validate(); err != nil {
		http.Error(w, config.HTTPErrInvalidDocument, http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *Server) serveList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error listing scratchpads")
		http.Error(w, "Error listing scratchpads", http.StatusInternalServerError)
		return
	}
	writeJSON(w, infos)
}

func (s *Server) serveGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r.PathValue("id"))
	if !ok {
		return
	}

	doc, err := repository.GetOrEmpty(r.Context(), s.store, id)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("id", string(id)).Msg("Error reading scratchpad")
		http.Error(w, "Error reading scratchpad", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set(config.HETag, `"`+doc.ContentHash+`"`)
	writeJSON(w, model.NewDocumentResponse(doc))
}

func (s *Server) servePut(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r.PathValue("id"))
	if !ok {
		return
	}

	// JSON escaping can at most double plain text, plus room for the envelope.
	r.Body = http.MaxBytesReader(w, r.Body, int64(2*s.maxContentBytes+1024))

	var req model.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Content too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := validateWrite(req, s.maxContentBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, _ := model.ParseWriteMode(string(req.Mode))

	doc, err := s.store.Put(r.Context(), id, []byte(req.Content), mode)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("id", string(id)).Msg("Error saving scratchpad")
		http.Error(w, "Error saving scratchpad", http.StatusInternalServerError)
		return
	}

	hlog.FromRequest(r).Info().
		Str("id", string(id)).
		Int64("version", int64(doc.Version)).
		Str("mode", string(mode)).
		Str("client_id", r.Header.Get(sse.HClientID)).
		Msg("Scratchpad saved")

	s.NotifyVersion(id, doc.Version)
	writeJSON(w, model.NewDocumentResponse(doc))
}

func validateWrite(req model.WriteRequest, maxBytes int) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Content, validation.By(func(any) error {
			if len(req.Content) > maxBytes {
				return fmt.Errorf("must be at most %d bytes", maxBytes)
			}
			return nil
		})),
		validation.Field(&req.Mode, validation.In(model.WriteReplace, model.WriteAppend)),
	)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r.URL.Query().Get("doc"))
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")

	client := sse.NewClient(id)
	s.clients.Add(client)

	logger := hlog.FromRequest(r).With().
		Str("id", string(id)).
		Str("client_id", r.Header.Get(sse.HClientID)).
		Logger()
	logger.Info().Msg("New SSE client connected")

	defer func() {
		s.clients.Delete(client)
		logger.Info().Msg("SSE client disconnected")
	}()

	sse.WriteEvent(w, sse.Event{Name: sse.EventConnected, Data: "SSE connection established"})

	// Catch up clients that missed changes while disconnected.
	if doc, err := s.store.Get(r.Context(), id); err == nil {
		sse.WriteEvent(w, sse.VersionEvent(doc.Version))
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Err(err).Msg("Error reading current version")
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			if err := sse.WriteEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func secureHeaders(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
