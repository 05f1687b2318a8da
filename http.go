package main

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"
	"golang.org/x/sync/errgroup"
)

// Routes returns the complete HTTP handler including middleware.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", a.handleChat)
	mux.HandleFunc("POST /api/chat/clear", a.handleClearHistory)
	mux.HandleFunc("POST /api/contact", a.handleSubmitContact)
	mux.HandleFunc("GET /api/contact", a.handleListContacts)
	mux.HandleFunc("PATCH /api/contact/{id}", a.handleUpdateContactStatus)
	mux.HandleFunc("GET /api/portfolio", a.handlePortfolio)
	mux.HandleFunc("GET /api/portfolio/{id}", a.handlePortfolioDocument)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("/", a.handleNotFound)

	var h http.Handler = mux
	h = a.corsHandler(h)
	h = a.originGuard(h)
	h = secure.New(secure.Options{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
	}).Handler(h)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("origin", r.Header.Get("Origin")).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("request_id", "X-Request-Id")(h)
	h = hlog.NewHandler(log.Logger)(h)
	return h
}

// Serve runs the HTTP server and the session sweeper until ctx is cancelled
// or SIGINT/SIGTERM arrives, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.Port),
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		a.sessions.RunSweeper(egCtx, DefaultSweepInterval)
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("environment", a.cfg.Environment).
			Bool("chat_enabled", a.chat.Enabled()).
			Bool("persistence_enabled", a.contacts.PersistenceEnabled()).
			Msg("starting portfolio backend")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

// AllowOrigin reports whether a browser origin may call the API.
func (c CORSConfig) AllowOrigin(origin string) bool {
	switch {
	case origin == "":
		return true
	case c.TrustedSuffix != "" && strings.HasSuffix(origin, c.TrustedSuffix):
		return true
	case strings.Contains(origin, "localhost"):
		return true
	case c.FrontendURL != "" && origin == c.FrontendURL:
		return true
	}
	return false
}

func (a *App) corsHandler(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowOriginFunc:  a.cfg.CORS.AllowOrigin,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(next)
}

// originGuard rejects requests from origins outside the allow list. The cors
// handler alone would only omit the response headers.
func (a *App) originGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !a.cfg.CORS.AllowOrigin(origin) {
			hlog.FromRequest(r).Warn().Str("origin", origin).Msg("origin rejected")
			writeJSON(w, http.StatusForbidden, map[string]any{
				"success": false,
				"error":   OriginNotAllowedMsg,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		a.writeError(w, r, err)
		return
	}

	reply, err := a.chat.Chat(r.Context(), req.Message, req.SessionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"message":   reply.Message,
			"timestamp": time.Now().UTC(),
		},
	})
}

func (a *App) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	var req ClearHistoryRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.chat.ClearHistory(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": HistoryClearedMsg,
	})
}

func (a *App) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var in ContactInput
	if err := decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	receipt, err := a.contacts.Submit(r.Context(), in, ContactMetadata{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": ContactReceivedMsg,
		"data":    receipt,
	})
}

func (a *App) handleListContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ContactFilter{Status: ContactStatus(q.Get("status"))}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		a.writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		a.writeError(w, r, err)
		return
	}

	page, applied, err := a.contacts.List(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []ContactSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    items,
		"total":   page.Total,
		"limit":   applied.Limit,
		"offset":  applied.Offset,
	})
}

func (a *App) handleUpdateContactStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		a.writeError(w, r, newValidationError("id", "%q must be a positive integer", "id"))
		return
	}

	var req StatusUpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.contacts.UpdateStatus(r.Context(), id, req.Status); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": ContactUpdatedMsg,
	})
}

func (a *App) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	_ = a.knowledge.Load(r.Context())
	corpus := a.knowledge.Corpus()
	if corpus == nil {
		a.writeError(w, r, ErrKnowledgeUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": corpus})
}

func (a *App) handlePortfolioDocument(w http.ResponseWriter, r *http.Request) {
	_ = a.knowledge.Load(r.Context())
	doc, err := a.knowledge.Document(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": doc})
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"environment": a.cfg.Environment,
	})
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (a *App) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": RouteNotFoundMsg,
		"path":  r.URL.Path,
	})
}

// writeError renders err with the status derived from its kind. Server-side
// failures are logged with the request's logger.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   clientMessage(err, a.cfg.IsProduction()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// decodeBody reads a JSON or form-encoded body into dst. An empty body leaves
// dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		return decodeForm(r, dst)
	}

	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case isTooLarge(err):
		return newValidationError("body", "request body must be at most %d bytes", MaxRequestBodyBytes)
	}
	return newValidationError("body", "request body must be valid JSON")
}

// decodeForm maps form fields onto dst through its json tags.
func decodeForm(r *http.Request, dst any) error {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(MaxRequestBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		if isTooLarge(err) {
			return newValidationError("body", "request body must be at most %d bytes", MaxRequestBodyBytes)
		}
		return newValidationError("body", "request body must be a valid form")
	}

	fields := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "encode form")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newValidationError("body", "request body has invalid fields")
	}
	return nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, newValidationError(name, "%q must be a non-negative integer", name)
	}
	return n, nil
}

// clientIP prefers the first X-Forwarded-For hop set by the hosting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
