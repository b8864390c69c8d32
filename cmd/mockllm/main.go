package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/models"
	"github.com/HanTheDev/phish-guard/internal/rules"
	"github.com/HanTheDev/phish-guard/internal/scoring"
)

// mockllm serves an OpenAI-compatible chat completions endpoint that answers
// every request with an analyze_phishing tool call derived from the static
// rules. Point OPENAI_BASE_URL at it to run the server without an API key.
func main() {
	addr := ":9000"
	if port := os.Getenv("MOCK_LLM_PORT"); port != "" {
		addr = ":" + port
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	logger.Info("mock llm starting", "addr", addr)
	if err := http.ListenAndServe(addr, newHandler(rules.New(), logger)); err != nil {
		logger.Error("mock llm stopped", "error", err)
		os.Exit(1)
	}
}

func newHandler(engine *rules.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		content := lastUserMessage(req.Messages)
		resp, err := completion(req.Model, verdict(engine, content))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)

		logger.Info("received request", "method", r.Method, "path", r.URL.Path, "model", req.Model, "bytes", len(content))
	})
}

func lastUserMessage(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			_, body, found := strings.Cut(messages[i].Content, "\n\n")
			if found {
				return body
			}
			return messages[i].Content
		}
	}
	return ""
}

func verdict(engine *rules.Engine, content string) models.AnalysisResult {
	findings := engine.Scan(content)
	summary := "No phishing indicators found by the mock model."
	if len(findings) > 0 {
		summary = fmt.Sprintf("The mock model flagged %d indicator(s).", len(findings))
	}
	return models.AnalysisResult{
		Score:      scoring.FromFindings(findings),
		Highlights: scoring.Highlights(findings),
		Summary:    summary,
	}
}

func completion(model string, result models.AnalysisResult) (openai.ChatCompletionResponse, error) {
	args, err := json.Marshal(result)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if model == "" {
		model = openai.GPT4o
	}
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			FinishReason: openai.FinishReasonToolCalls,
			Message: openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   "call_" + uuid.NewString(),
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      llm.FunctionName,
						Arguments: string(args),
					},
				}},
			},
		}},
	}, nil
}
