// Command server exposes Component F's Conversation over HTTP, adapted from
// examples/chi-server: POST /conversations/{id}/messages streams an
// AgentEvent per server-sent event for the resulting turn loop run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/corvid-labs/chatmux/pkg/agent"
	"github.com/corvid-labs/chatmux/pkg/model"
	"github.com/corvid-labs/chatmux/pkg/provider"
	"github.com/corvid-labs/chatmux/pkg/providers/anthropic"
	"github.com/corvid-labs/chatmux/pkg/providers/cerebras"
	"github.com/corvid-labs/chatmux/pkg/providers/deepseek"
	"github.com/corvid-labs/chatmux/pkg/providers/google"
	"github.com/corvid-labs/chatmux/pkg/providers/moonshot"
	"github.com/corvid-labs/chatmux/pkg/providers/openresponses"
	"github.com/corvid-labs/chatmux/pkg/providers/zai"
	"github.com/corvid-labs/chatmux/pkg/providerutils/streaming"
)

// newRegistry registers every adapter named in SPEC_FULL.md §6 against the
// API key its own environment variable holds. An adapter with no key set is
// still registered; it will fail at Stream/Complete time with the provider's
// MissingCredentialError rather than being silently absent.
func newRegistry() *provider.Registry {
	r := provider.NewRegistry()
	r.Register("anthropic", anthropic.NewAdapter(provider.APIKeyFromEnv("anthropic"), ""))
	r.Register("openai-responses", openresponses.NewAdapter(provider.APIKeyFromEnv("openai-responses"), ""))
	r.Register("google", google.NewAdapter(provider.APIKeyFromEnv("google"), ""))
	r.Register("deepseek", deepseek.NewAdapter(provider.APIKeyFromEnv("deepseek"), ""))
	r.Register("cerebras", cerebras.NewAdapter(provider.APIKeyFromEnv("cerebras"), ""))
	r.Register("zai", zai.NewAdapter(provider.APIKeyFromEnv("zai"), ""))
	r.Register("moonshot", moonshot.NewAdapter(provider.APIKeyFromEnv("moonshot"), ""))
	return r
}

// conversationStore lazily creates one Conversation per id and reuses it
// across requests, per spec.md §5's "Conversation is a long-lived,
// single-tenant controller".
type conversationStore struct {
	mu            sync.Mutex
	registry      *provider.Registry
	conversations map[string]*agent.Conversation
}

func newConversationStore(reg *provider.Registry) *conversationStore {
	return &conversationStore{registry: reg, conversations: make(map[string]*agent.Conversation)}
}

// createRequest describes the provider/model a new conversation should bind
// to; it is only consulted the first time an id is seen.
type createRequest struct {
	API           string   `json:"api"`
	ModelID       string   `json:"model"`
	SystemPrompt  string   `json:"systemPrompt"`
	ContextWindow int      `json:"contextWindow"`
	MaxTokens     int      `json:"maxTokens"`
	Reasoning     bool     `json:"reasoning"`
	Temperature   *float64 `json:"temperature"`
	CostLimit     *float64 `json:"costLimit"`
	Text          string   `json:"text"`
}

func (s *conversationStore) getOrCreate(id string, req createRequest) (*agent.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[id]; ok {
		return c, nil
	}

	adapter, err := s.registry.Get(req.API)
	if err != nil {
		return nil, err
	}

	m := model.Model{
		ID:            req.ModelID,
		API:           req.API,
		Reasoning:     req.Reasoning,
		ContextWindow: req.ContextWindow,
		MaxTokens:     req.MaxTokens,
		Capabilities:  map[string]bool{model.CapabilityFunctionCalling: true},
	}

	c := agent.New(agent.Init{
		Adapter:      adapter,
		Model:        m,
		Options:      model.Options{Temperature: req.Temperature},
		SystemPrompt: req.SystemPrompt,
		CostLimit:    req.CostLimit,
	})
	s.conversations[id] = c
	return c, nil
}

func main() {
	reg := newRegistry()
	store := newConversationStore(reg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"service": "chatmux server",
			"version": "1.0.0",
		})
	})

	r.Post("/conversations/{id}/messages", handlePromptFn(store))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("chatmux server on :%s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

func handlePromptFn(store *conversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		convo, err := store.getOrCreate(id, req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sseWriter := streaming.NewSSEWriter(w)
		events := make(chan agent.AgentEvent, 64)
		unsubscribe := convo.Subscribe(func(evt agent.AgentEvent) {
			events <- evt
		})
		defer unsubscribe()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := convo.Prompt(ctx, req.Text)
			done <- err
		}()

		for {
			select {
			case evt := <-events:
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				_ = sseWriter.WriteNamedEvent(string(evt.Kind), string(payload))
				flusher.Flush()
			case err := <-done:
				drainPending(events, sseWriter, flusher)
				if err != nil {
					_ = sseWriter.WriteNamedEvent("error", err.Error())
				}
				_ = sseWriter.WriteDone()
				flusher.Flush()
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// drainPending flushes any events published between the last select read and
// the agent loop's return, so agent_end is never the only undelivered event.
func drainPending(events chan agent.AgentEvent, w *streaming.SSEWriter, flusher http.Flusher) {
	for {
		select {
		case evt := <-events:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_ = w.WriteNamedEvent(string(evt.Kind), string(payload))
			flusher.Flush()
		default:
			return
		}
	}
}
