package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/platform"
)

// Every built-in platform's prompt gets an answer its generator accepts.
func TestRespond_CoversEveryPlatform(t *testing.T) {
	reg := generator.DefaultRegistry()
	for _, id := range platform.All() {
		g, ok := reg.Get(id)
		if !ok {
			t.Fatalf("missing generator for %s", id)
		}
		prompt := g.GeneratePrompt("We released version 2 of our product today.", generator.Options{})
		raw, ok := respond(prompt)
		if !ok {
			t.Fatalf("%s: no canned answer", id)
		}
		posts, err := g.ProcessResponse(raw)
		if err != nil || len(posts) == 0 {
			t.Fatalf("%s: %v %+v", id, err, posts)
		}
		for _, p := range posts {
			if !g.ValidatePost(p) {
				t.Fatalf("%s: invalid post %+v", id, p)
			}
		}
	}
}

func TestChatCompletions(t *testing.T) {
	ts := httptest.NewServer(newMux("m"))
	defer ts.Close()
	body, _ := json.Marshal(map[string]any{
		"model":    "m",
		"messages": []map[string]string{{"role": "user", "content": "Write for LinkedIn"}},
	})
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Choices) != 1 {
		t.Fatalf("decode: %v %+v", err, out)
	}

	body, _ = json.Marshal(map[string]any{"model": "m", "messages": []map[string]string{{"role": "user", "content": "hello"}}})
	resp2, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected prompt status %d", resp2.StatusCode)
	}
}
