package inferrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sharedmem/controller/internal/registry"
	"github.com/sharedmem/controller/internal/supervisor"
	"github.com/sharedmem/controller/pkg/xlog"
)

var (
	// ErrEngineNotRunning is returned when backend_type is "local" and
	// the supervised engine isn't currently up (spec §4.7, 503).
	ErrEngineNotRunning = errors.New("inferrouter: local engine not running")
	// ErrNoBackendConfigured is returned when backend_type names an
	// external backend but backend_url is empty (spec §4.7, 503).
	ErrNoBackendConfigured = errors.New("inferrouter: no backend_url configured")
)

const backendTypeLocal = "local"

// Router proxies /v1/chat/completions and /v1/models to whichever
// backend the backend_type setting selects: the locally-supervised
// engine for "local", the configured backend_url otherwise, with no
// fallback from one to the other (spec §4.7). It forwards
// raw request/response bytes — it never constructs or parses OpenAI
// SDK types, matching the "no OpenAI completion semantics" non-goal.
type Router struct {
	supervisor *supervisor.Supervisor
	registry   *registry.Registry
	client     *http.Client
	log        *xlog.Logger
}

func New(sup *supervisor.Supervisor, reg *registry.Registry, log *xlog.Logger) *Router {
	return &Router{
		supervisor: sup,
		registry:   reg,
		client:     &http.Client{Timeout: 0}, // no client-wide cap; ServeProxy bounds each request at 10 minutes
		log:        log.Named("inferrouter"),
	}
}

// activeBackendType reads the backend_type setting (default "local"),
// the selector spec §4.7 routes every request on.
func (rt *Router) activeBackendType() string {
	t, ok, _ := rt.registry.GetSetting("backend_type")
	if !ok || t == "" {
		return backendTypeLocal
	}
	return t
}

// baseURL implements spec §4.7's exact routing rule: backend_type=local
// requires the supervised engine to be running; any other backend_type
// requires a non-empty backend_url. It never falls back silently
// between the two — the configured type is authoritative.
func (rt *Router) baseURL(ctx context.Context) (string, error) {
	if rt.activeBackendType() == backendTypeLocal {
		if !rt.supervisor.EngineHealthy(ctx) {
			return "", ErrEngineNotRunning
		}
		return fmt.Sprintf("http://127.0.0.1:%d", rt.supervisor.EnginePort()), nil
	}
	url, ok, _ := rt.registry.GetSetting("backend_url")
	if !ok || url == "" {
		return "", ErrNoBackendConfigured
	}
	return strings.TrimRight(url, "/"), nil
}

// ServeProxy forwards method+path+body to the active backend and
// streams the response straight back via io.Copy with no buffering, so
// server-sent-event chunks reach the client as they arrive.
func (rt *Router) ServeProxy(w http.ResponseWriter, r *http.Request, path string) {
	base, err := rt.baseURL(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	upstream, err := http.NewRequestWithContext(ctx, r.Method, base+path, r.Body)
	if err != nil {
		http.Error(w, "bad upstream request", http.StatusInternalServerError)
		return
	}
	upstream.Header = r.Header.Clone()
	if apiKey, ok, _ := rt.registry.GetSetting("backend_api_key"); ok && apiKey != "" {
		upstream.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := rt.client.Do(upstream)
	if err != nil {
		rt.log.Warnf("proxy request to %s failed: %v", base+path, err)
		http.Error(w, "backend unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// ChatCompletions implements POST /v1/chat/completions.
func (rt *Router) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	if rt.activeBackendType() == backendTypeOllamaFarm {
		rt.chatViaOllamaFarm(w, r)
		return
	}
	rt.ServeProxy(w, r, "/v1/chat/completions")
}

// emptyModelList is the OpenAI list shape with no entries, returned
// with 200 instead of an error so subscribers don't treat disconnection
// as fatal (spec §4.7 list-models).
const emptyModelList = `{"object":"list","data":[]}`

// ListModels implements GET /v1/models. When the active backend is
// unreachable or not running it returns emptyModelList with 200;
// otherwise it proxies the request non-streaming (spec §4.7).
func (rt *Router) ListModels(w http.ResponseWriter, r *http.Request) {
	base, err := rt.baseURL(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, emptyModelList)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	upstream, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, emptyModelList)
		return
	}
	if apiKey, ok, _ := rt.registry.GetSetting("backend_api_key"); ok && apiKey != "" {
		upstream.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := rt.client.Do(upstream)
	if err != nil {
		rt.log.Warnf("list-models request to %s failed: %v", base, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, emptyModelList)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
