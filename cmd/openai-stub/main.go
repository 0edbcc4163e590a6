// Command openai-stub serves a minimal OpenAI-compatible API that answers
// platform prompts with well-formed JSON posts, for offline end-to-end runs.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := ""
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}
		content, ok := respond(prompt)
		if !ok {
			http.Error(w, "unexpected prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-stub",
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{
				"prompt_tokens":     len(prompt) / 4,
				"completion_tokens": len(content) / 4,
				"total_tokens":      (len(prompt) + len(content)) / 4,
			},
		})
	})
	return mux
}

// respond picks a canned answer by the platform named in the prompt.
func respond(prompt string) (string, bool) {
	switch {
	case strings.Contains(prompt, "YouTube"):
		return `{"title":"What we shipped","description":"A walkthrough of the release and what it means for you.","tags":["release","product"],"timestamps":[{"time":"0:00","label":"Intro"},{"time":"1:30","label":"Demo"}]}`, true
	case strings.Contains(prompt, "TikTok"):
		return `{"title":"New release in 30 seconds","caption":"Here is everything new, fast.","hashtags":["release","tech"],"soundSuggestions":["upbeat synth"],"trendingTopics":["product launch"]}`, true
	case strings.Contains(prompt, "Twitter/X"):
		return "```json\n" + `[{"content":"We just shipped a big release.","hashtags":["release"]},{"content":"Here is what changed and why it matters.","hashtags":[]}]` + "\n```", true
	case strings.Contains(prompt, "LinkedIn"), strings.Contains(prompt, "Instagram"),
		strings.Contains(prompt, "Facebook"), strings.Contains(prompt, "Threads"):
		return `[{"content":"Our latest release is live. It brings faster workflows and a cleaner dashboard.","hashtags":["release","product"],"mentions":[]}]`, true
	}
	return "", false
}
