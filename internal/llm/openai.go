package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/HanTheDev/phish-guard/internal/models"
)

const (
	DefaultModel   = openai.GPT4o
	DefaultTimeout = 60 * time.Second
	FunctionName   = "analyze_phishing"
)

// ErrClassifier wraps every transport, timeout and schema failure.
var ErrClassifier = errors.New("llm classifier failed")

type Kind string

const (
	KindEmail Kind = "email"
	KindURL   Kind = "url"
)

type Request struct {
	Content string
	Kind    Kind
}

type Classifier interface {
	Classify(ctx context.Context, req Request) (*models.AnalysisResult, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) (*models.AnalysisResult, error)

func (f ClassifierFunc) Classify(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	return f(ctx, req)
}

const systemPrompt = `You are an expert in analysing phishing emails and URLs. Evaluate the content against these criteria:

1. Suspicious domains, links or attachments
2. Language that manufactures urgency
3. Requests for personal or financial information
4. Attempts to spoof the sender
5. Spelling and grammar errors
6. Use of social engineering techniques

Score scale:
- Critical: confirmed phishing
- High: phishing is highly likely
- Medium: some suspicious elements
- Low: minor points of caution
- Safe: a legitimate email or URL

Always answer by calling the analyze_phishing function.`

func userPrompt(req Request) string {
	noun := "email"
	if req.Kind == KindURL {
		noun = "URL"
	}
	return fmt.Sprintf("Analyze the following %s:\n\n%s", noun, req.Content)
}

func analyzeFunction() *openai.FunctionDefinition {
	return &openai.FunctionDefinition{
		Name:        FunctionName,
		Description: "Return phishing analysis results",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"score": {
					Type:        jsonschema.String,
					Enum:        models.RiskLevelNames(),
					Description: "Phishing risk score",
				},
				"highlights": {
					Type:        jsonschema.Array,
					Description: "List of suspicious elements",
					Items: &jsonschema.Definition{
						Type: jsonschema.Object,
						Properties: map[string]jsonschema.Definition{
							"text":   {Type: jsonschema.String, Description: "Suspicious text"},
							"reason": {Type: jsonschema.String, Description: "Why it is suspicious"},
						},
						Required: []string{"text", "reason"},
					},
				},
				"summary": {
					Type:        jsonschema.String,
					Description: "Analysis summary",
				},
			},
			Required: []string{"score", "highlights", "summary"},
		},
	}
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClassifier(cfg OpenAIConfig) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
	}
}

// Classify makes a single attempt bounded by the configured timeout.
func (c *OpenAIClassifier) Classify(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	ctx, span := otel.Tracer("phishguard/llm").Start(ctx, "llm.classify")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.String("content.kind", string(req.Kind)),
		attribute.Int("content.length", len(req.Content)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		Tools: []openai.Tool{
			{Type: openai.ToolTypeFunction, Function: analyzeFunction()},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: FunctionName},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, fmt.Errorf("%w: %w", ErrClassifier, err)
	}

	args, err := functionArguments(resp)
	if err == nil {
		var result *models.AnalysisResult
		result, err = ParseVerdict(args)
		if err == nil {
			span.SetAttributes(attribute.String("llm.score", result.Score.String()))
			return result, nil
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "invalid verdict")
	return nil, fmt.Errorf("%w: %w", ErrClassifier, err)
}

func functionArguments(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrInvalidVerdict)
	}
	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == FunctionName && call.Function.Arguments != "" {
			return call.Function.Arguments, nil
		}
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Arguments != "" {
		return msg.FunctionCall.Arguments, nil
	}
	return "", fmt.Errorf("%w: no %s call in response", ErrInvalidVerdict, FunctionName)
}
