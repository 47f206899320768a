package inferrouter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
)

// backendTypeOllamaFarm is an additional backend_type this router
// understands beyond spec §4.7's local/external split: a pool of Ollama
// servers, one of which is picked by liveness on every request. Grounded
// on the teacher's pkg/assistant/providers/ollama.New
// (_examples/xpanvictor-xarvis) — one ollamafarm.Farm built from a
// configured server list, farm.First(&ollamafarm.Where{Offline: false})
// picking whichever is currently reachable — adapted from a
// construction-time farm bound to static config into one rebuilt per
// request from the stored backend_urls setting. backend_urls is not in
// the settings allow-list, so PUT /api/settings rejects it.
const backendTypeOllamaFarm = "ollama_farm"

type openAIChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Index        int                 `json:"index"`
	Message      openAIChoiceMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type openAIChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// farm builds an ollamafarm.Farm from the comma-separated backend_urls
// setting, registering every server the same way the teacher's
// ollama.New loops over cfg.LLamaModels and calls farm.RegisterURL.
func (rt *Router) farm() (*ollamafarm.Farm, error) {
	raw, ok, _ := rt.registry.GetSetting("backend_urls")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrNoBackendConfigured
	}
	f := ollamafarm.New()
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if err := f.RegisterURL(u, nil); err != nil {
			rt.log.Warnf("registering ollama farm server %s: %v", u, err)
		}
	}
	return f, nil
}

// chatViaOllamaFarm handles backend_type=ollama_farm: pick the first live
// farm server and issue a non-streaming chat through the native Ollama
// client (github.com/ollama/ollama/api), translating the OpenAI-shaped
// wire request/response at the edges so callers elsewhere in this repo
// don't need to know which backend_type served them.
func (rt *Router) chatViaOllamaFarm(w http.ResponseWriter, r *http.Request) {
	var req openAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	f, err := rt.farm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	server := f.First(&ollamafarm.Where{Offline: false})
	if server == nil {
		http.Error(w, "no reachable ollama farm server", http.StatusServiceUnavailable)
		return
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	stream := false
	chatReq := &api.ChatRequest{Model: req.Model, Messages: messages, Stream: &stream}

	var content strings.Builder
	err = server.Client().Chat(r.Context(), chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		rt.log.Warnf("ollama farm chat failed: %v", err)
		http.Error(w, fmt.Sprintf("ollama farm chat failed: %v", err), http.StatusBadGateway)
		return
	}

	resp := openAIChatResponse{
		ID:     "farm-" + req.Model,
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openAIChoice{{
			Index:        0,
			Message:      openAIChoiceMessage{Role: "assistant", Content: content.String()},
			FinishReason: "stop",
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
