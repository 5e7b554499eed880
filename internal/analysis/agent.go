// Package analysis runs the two-model contract analysis: a big model
// produces a free-form legal review, a small model extracts the
// structured JSON report from that output.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// ErrNoAPIKey is returned when the agent is constructed without a key.
var ErrNoAPIKey = errors.New("analysis: OpenAI API key not set")

// Price is the per-million-token cost of one model.
type Price struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Config selects the models and analysis context for one agent.
type Config struct {
	BigModel         string
	SmallModel       string
	DocumentType     string
	SpecificConcerns string
	Prices           map[string]Price
	PricesSetDate    string
	Timeout          time.Duration
}

// Usage counts tokens consumed by one model call.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
}

// Cost is the estimated dollar cost of one analysis run.
type Cost struct {
	LastSet      string  `json:"last_set"`
	BigModel     float64 `json:"big_model_cost_dollars"`
	SmallModel   float64 `json:"small_model_cost_dollars"`
	TotalDollars float64 `json:"total_cost_dollars"`
}

// Output is the result of one full analysis run.
type Output struct {
	Report          map[string]any `json:"report"`
	ContractContent string         `json:"contract_content"`
	BigModelUsage   Usage          `json:"big_model_usage"`
	SmallModelUsage Usage          `json:"small_model_usage"`
	RuntimeSeconds  float64        `json:"runtime_seconds"`
	EstimatedCost   *Cost          `json:"estimated_cost,omitempty"`
}

// completionFunc performs one chat completion. Split out so tests can
// run the agent without the network.
type completionFunc func(ctx context.Context, model, prompt string, jsonOnly bool) (string, Usage, error)

// Agent drives the analyze-then-extract sequence.
type Agent struct {
	cfg      Config
	complete completionFunc
}

// NewAgent builds an agent with its own provider client. The scheduler
// constructs one per dispatched job so concurrent executions never share
// client-side connection or rate-limit state.
func NewAgent(apiKey string, cfg Config) (*Agent, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	a := &Agent{cfg: cfg}
	a.complete = func(ctx context.Context, model, prompt string, jsonOnly bool) (string, Usage, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		}
		if jsonOnly {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
			}
		}

		completion, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", Usage{}, fmt.Errorf("chat completion (%s): %w", model, err)
		}
		if len(completion.Choices) == 0 {
			return "", Usage{}, fmt.Errorf("chat completion (%s): no choices returned", model)
		}
		usage := Usage{
			Input:  completion.Usage.PromptTokens,
			Output: completion.Usage.CompletionTokens,
		}
		return completion.Choices[0].Message.Content, usage, nil
	}
	return a, nil
}

// Run analyzes the contract text and returns the structured report.
// Any failure, including the secondary extraction step, is an error:
// a report with no structured result is worthless downstream.
func (a *Agent) Run(ctx context.Context, contractText string) (Output, error) {
	start := time.Now()

	analysisText, bigUsage, err := a.complete(ctx, a.cfg.BigModel, a.buildAnalysisPrompt(contractText), false)
	if err != nil {
		return Output{}, fmt.Errorf("contract analysis: %w", err)
	}

	report, smallUsage, err := a.extractReport(ctx, analysisText)
	if err != nil {
		return Output{}, fmt.Errorf("report extraction: %w", err)
	}

	out := Output{
		Report:          report,
		ContractContent: contractText,
		BigModelUsage:   bigUsage,
		SmallModelUsage: smallUsage,
		RuntimeSeconds:  time.Since(start).Seconds(),
	}
	out.EstimatedCost = a.estimateCost(bigUsage, smallUsage)
	return out, nil
}

// extractReport asks the small model to pull the JSON report out of the
// big model's free-form analysis.
func (a *Agent) extractReport(ctx context.Context, analysisText string) (map[string]any, Usage, error) {
	prompt := fmt.Sprintf("%s\n\nInput Text:\n```\n%s\n```\n\n%s",
		extractionContext, analysisText, extractionInstructions)

	raw, usage, err := a.complete(ctx, a.cfg.SmallModel, prompt, true)
	if err != nil {
		return nil, usage, err
	}
	report, err := DecodeJSONObject(raw)
	if err != nil {
		return nil, usage, err
	}
	return report, usage, nil
}

func (a *Agent) estimateCost(big, small Usage) *Cost {
	if a.cfg.PricesSetDate == "" {
		return nil
	}
	bigPrice, ok := a.cfg.Prices[a.cfg.BigModel]
	if !ok {
		return nil
	}
	smallPrice, ok := a.cfg.Prices[a.cfg.SmallModel]
	if !ok {
		return nil
	}
	bigCost := float64(big.Input)/1e6*bigPrice.Input + float64(big.Output)/1e6*bigPrice.Output
	smallCost := float64(small.Input)/1e6*smallPrice.Input + float64(small.Output)/1e6*smallPrice.Output
	return &Cost{
		LastSet:      a.cfg.PricesSetDate,
		BigModel:     bigCost,
		SmallModel:   smallCost,
		TotalDollars: bigCost + smallCost,
	}
}

// DecodeJSONObject parses a model response into a JSON object, stripping
// markdown code fences the models sometimes wrap around output.
func DecodeJSONObject(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("decode model JSON: %w", err)
	}
	// "null" unmarshals into a nil map without error; treat anything
	// that is not an object as a failed extraction.
	if out == nil {
		return nil, errors.New("decode model JSON: response is not a JSON object")
	}
	return out, nil
}

func (a *Agent) buildAnalysisPrompt(contractText string) string {
	docType := a.cfg.DocumentType
	if docType == "" {
		docType = "Unknown"
	}
	concerns := a.cfg.SpecificConcerns
	if concerns == "" {
		concerns = "None specified"
	}
	return fmt.Sprintf(`%s

Document Under Review:
%s
%s
%s

Context Variables:
document_type: %s
specific_concerns: %s

%s

%s

%s`,
		analysisContext, "```", contractText, "```",
		docType, concerns,
		analysisFramework, analysisOutputInstructions, strictJSONInstruction)
}
