package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ignitionstack/ember/pkg/contract"
	"github.com/ignitionstack/ember/pkg/engine/errors"
	"github.com/ignitionstack/ember/pkg/engine/logging"
	"github.com/ignitionstack/ember/pkg/engine/metrics"
	"github.com/ignitionstack/ember/pkg/engine/sandbox"
	"github.com/ignitionstack/ember/pkg/types"
)

const pageTitle = "ember"

// Handlers contains HTTP handlers for engine endpoints
type Handlers struct {
	engine    *Engine
	logger    logging.Logger
	metrics   *metrics.Metrics
	validator *validator.Validate
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *Engine, logger logging.Logger) *Handlers {
	return &Handlers{
		engine:    engine,
		logger:    logger,
		metrics:   engine.Metrics(),
		validator: validator.New(),
	}
}

// UnixSocketHandler returns a HTTP handler for the admin endpoints
func (h *Handlers) UnixSocketHandler() http.Handler {
	mux := http.NewServeMux()

	post := func(route string) []Middleware {
		return []Middleware{h.methodMiddleware(http.MethodPost), h.loggingMiddleware(route), h.errorMiddleware()}
	}
	get := func(route string) []Middleware {
		return []Middleware{h.methodMiddleware(http.MethodGet), h.loggingMiddleware(route), h.errorMiddleware()}
	}

	mux.HandleFunc("/status", h.withMiddleware(h.handleStatus, get("/status")...))
	mux.HandleFunc("/plugins", h.withMiddleware(h.handlePlugins, get("/plugins")...))
	mux.HandleFunc("/reload", h.withMiddleware(h.handleReload, post("/reload")...))
	mux.HandleFunc("/enable", h.withMiddleware(h.handleEnable(true), post("/enable")...))
	mux.HandleFunc("/disable", h.withMiddleware(h.handleEnable(false), post("/disable")...))
	mux.HandleFunc("/call", h.withMiddleware(h.handleCall, post("/call")...))
	mux.HandleFunc("/logs/", h.withMiddleware(h.handlePluginLogs, get("/logs/")...))

	return mux
}

// HTTPHandler returns a HTTP handler for public endpoints
func (h *Handlers) HTTPHandler() http.Handler {
	mux := http.NewServeMux()

	get := func(route string) []Middleware {
		return []Middleware{h.methodMiddleware(http.MethodGet), h.loggingMiddleware(route), h.corsMiddleware()}
	}

	mux.HandleFunc("/pages/", h.withMiddleware(h.handlePage, get("/pages/")...))
	mux.HandleFunc("/plugins/", h.withMiddleware(h.handlePluginPage, get("/plugins/")...))
	mux.HandleFunc("/admin/plugins/", h.withMiddleware(h.handleAdminPage, get("/admin/plugins/")...))
	mux.HandleFunc("/admin/menus", h.withMiddleware(h.handleMenus,
		append(get("/admin/menus"), h.errorMiddleware())...))
	mux.HandleFunc("/health", h.withMiddleware(h.handleHealth,
		h.methodMiddleware(http.MethodGet), h.errorMiddleware()))
	mux.Handle("/metrics", h.metrics.Handler())

	return mux
}

// decodeAndValidate decodes and validates a request
func (h *Handlers) decodeAndValidate(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError("Invalid request body")
	}

	if err := h.validator.Struct(v); err != nil {
		return NewBadRequestError(fmt.Sprintf("Validation failed: %v", err))
	}

	return nil
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(data)
}

// Public pages

// handlePage serves /pages/<url> from the plugin whose route matches <url>.
func (h *Handlers) handlePage(w http.ResponseWriter, r *http.Request) error {
	url := "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/pages"), "/")
	return h.servePluginPage(w, r, sandbox.ByRoute(url), url, nil)
}

// handlePluginPage serves /plugins/{id}/<url> from one plugin.
func (h *Handlers) handlePluginPage(w http.ResponseWriter, r *http.Request) error {
	id, url := splitPluginPath(strings.TrimPrefix(r.URL.Path, "/plugins/"))
	if id == "" {
		return h.writeHTMLError(w, "", NewNotFoundError("Plugin not found"), nil)
	}
	return h.servePluginPage(w, r, sandbox.ByID(id), url, nil)
}

// handleAdminPage embeds one plugin's output in the admin page. A plugin
// failure becomes an error fragment inside an otherwise intact page.
func (h *Handlers) handleAdminPage(w http.ResponseWriter, r *http.Request) error {
	id, url := splitPluginPath(strings.TrimPrefix(r.URL.Path, "/admin/plugins/"))
	if id == "" {
		return h.writeHTMLError(w, "", NewNotFoundError("Plugin not found"), h.engine.Menus())
	}

	menus := h.engine.Menus()
	resp, pluginID, err := h.engine.Load(r.Context(), sandbox.ByID(id), contract.Request{URL: url, Query: r.URL.RawQuery})
	if err != nil {
		if errors.Is(err, errors.DomainInvocation, errors.CodePluginNotFound) {
			return h.writeHTMLError(w, id, err, menus)
		}
		page := NewErrorPage(pageTitle, pluginID, err)
		page.Menus = menus
		return h.writeHTML(w, http.StatusOK, page)
	}

	page := NewPage(pageTitle, resp)
	page.Menus = menus
	return h.writeHTML(w, http.StatusOK, page)
}

func (h *Handlers) servePluginPage(w http.ResponseWriter, r *http.Request, sel sandbox.Selector, url string, menus []sandbox.MenuEntry) error {
	resp, pluginID, err := h.engine.Load(r.Context(), sel, contract.Request{URL: url, Query: r.URL.RawQuery})
	if err != nil {
		return h.writeHTMLError(w, pluginID, err, menus)
	}
	page := NewPage(pageTitle, resp)
	page.Menus = menus
	return h.writeHTML(w, http.StatusOK, page)
}

func (h *Handlers) writeHTMLError(w http.ResponseWriter, pluginID string, err error, menus []sandbox.MenuEntry) error {
	status := ErrorToStatusCode(err)
	h.logger.Warnf("Page request failed with %d: %v", status, err)

	page := NewErrorPage(pageTitle, pluginID, err)
	if reqErr, ok := err.(RequestError); ok {
		page.Error.Message = reqErr.Message
	}
	page.Menus = menus
	return h.writeHTML(w, status, page)
}

func (h *Handlers) writeHTML(w http.ResponseWriter, status int, page *Page) error {
	var buf bytes.Buffer
	if err := RenderPage(&buf, page); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// splitPluginPath splits "id/rest?" into the id and a rooted url.
func splitPluginPath(p string) (string, string) {
	id, rest, _ := strings.Cut(p, "/")
	return id, "/" + rest
}

func (h *Handlers) handleMenus(w http.ResponseWriter, _ *http.Request) error {
	menus := h.engine.Menus()
	if menus == nil {
		menus = []sandbox.MenuEntry{}
	}
	return h.writeJSONResponse(w, menus)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	status := h.engine.Status()
	if status.Generation == 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		return json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
	}
	return h.writeJSONResponse(w, map[string]interface{}{
		"status":     "healthy",
		"generation": status.Generation,
		"plugins":    status.Plugins,
	})
}

// Admin endpoints

func (h *Handlers) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	return h.writeJSONResponse(w, h.engine.Status())
}

func (h *Handlers) handlePlugins(w http.ResponseWriter, _ *http.Request) error {
	plugins, err := h.engine.Plugins()
	if err != nil {
		return fmt.Errorf("failed to list plugins: %w", err)
	}
	if plugins == nil {
		plugins = []types.PluginStatus{}
	}
	return h.writeJSONResponse(w, plugins)
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) error {
	h.logger.Printf("Received reload request")

	report, err := h.engine.Reload(r.Context())
	if err != nil {
		return err
	}

	resp := NewReloadResponse(h.engine.Status().Generation, report)
	return h.writeJSONResponse(w, resp)
}

// NewReloadResponse summarizes a discovery report for the admin API.
func NewReloadResponse(generation uint64, report *sandbox.Report) types.ReloadResponse {
	resp := types.ReloadResponse{
		Generation: generation,
		Candidates: report.Candidates,
		Plugins:    make([]string, 0, len(report.Plugins)),
		Bare:       make([]string, 0, len(report.Bare)),
		Failures:   make([]types.FailureInfo, 0, len(report.Failures)),
		Duration:   report.Duration.String(),
	}
	for _, p := range report.Plugins {
		resp.Plugins = append(resp.Plugins, p.ID)
	}
	for _, b := range report.Bare {
		resp.Bare = append(resp.Bare, b.ID)
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, types.FailureInfo{ID: f.ID, Path: f.Path, Error: f.Err.Error()})
	}
	return resp
}

func (h *Handlers) handleEnable(enabled bool) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req types.PluginRequest
		if err := h.decodeAndValidate(r, &req); err != nil {
			return err
		}

		record, err := h.engine.SetEnabled(req.ID, enabled)
		if err != nil {
			return err
		}
		return h.writeJSONResponse(w, types.EnableResponse{ID: record.ID, Enabled: record.Enabled})
	}
}

func (h *Handlers) handleCall(w http.ResponseWriter, r *http.Request) error {
	var req types.CallRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		return err
	}
	if req.Export == "" {
		req.Export = contract.ExportLoad
	}

	h.logger.Printf("Received call request for %s.%s", req.ID, req.Export)

	start := time.Now()
	var output []byte
	if req.Export == contract.ExportLoad {
		url := req.URL
		if url == "" {
			url = "/"
		}
		resp, _, err := h.engine.Load(r.Context(), sandbox.ByID(req.ID), contract.Request{URL: url, Query: req.Query})
		if err != nil {
			return err
		}
		if output, err = json.Marshal(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	} else {
		input := []byte(req.Input)
		out, err := h.engine.Call(r.Context(), req.ID, req.Export, input)
		if err != nil {
			return err
		}
		output = out
	}

	return h.writeJSONResponse(w, types.CallResponse{
		PluginID: req.ID,
		Export:   req.Export,
		Output:   rawOutput(output),
		Duration: time.Since(start).String(),
	})
}

// rawOutput passes JSON output through and quotes anything else.
func rawOutput(out []byte) json.RawMessage {
	if len(out) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(out) {
		return json.RawMessage(out)
	}
	quoted, _ := json.Marshal(string(out))
	return quoted
}

func (h *Handlers) handlePluginLogs(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimPrefix(r.URL.Path, "/logs/")
	if id == "" || strings.Contains(id, "/") {
		return NewBadRequestError("Invalid plugin id")
	}

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return NewBadRequestError("Invalid since duration")
		}
		since = time.Now().Add(-d)
	}

	tail := 0
	if t := r.URL.Query().Get("tail"); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 {
			return NewBadRequestError("Invalid tail value")
		}
		tail = n
	}

	lines := h.engine.Logs(id, since, tail)
	if lines == nil {
		lines = []string{}
	}
	return h.writeJSONResponse(w, types.LogsResponse{ID: id, Lines: lines})
}
