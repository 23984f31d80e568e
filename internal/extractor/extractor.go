// Package extractor turns raw email text into expense fields using a hosted
// Gemini model with a single forced function call.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// DefaultMaxOutputTokens caps the model reply.
const DefaultMaxOutputTokens = 2000

// FunctionName is the only function the model is allowed to call.
const FunctionName = "summarize_email"

const instruction = "Please use the summarize_email tool to generate the email summary JSON based on the " +
	"content within the <content> tags. The email may be in spanish, and contain information about " +
	"transactions and expenses in my bank account."

// ModelClient is the subset of *genai.Models used by the extractor.
type ModelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Summary holds the four fields extracted from an email.
type Summary struct {
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	Name     string  `json:"name"`
	Card     string  `json:"card"`
}

// Fields converts the summary into record fields.
func (s *Summary) Fields() domain.ExpenseFields {
	card := s.Card
	return domain.ExpenseFields{
		Amount:   decimal.NewNullDecimal(decimal.NewFromFloat(s.Amount)),
		Merchant: s.Merchant,
		Name:     s.Name,
		Card:     &card,
	}
}

// Extractor calls the model and validates its structured reply.
type Extractor struct {
	client          ModelClient
	model           string
	maxOutputTokens int32
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(e *Extractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithMaxOutputTokens overrides the output token budget.
func WithMaxOutputTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxOutputTokens = int32(n)
		}
	}
}

// New creates an Extractor over client, typically (*genai.Client).Models.
func New(client ModelClient, opts ...Option) *Extractor {
	e := &Extractor{
		client:          client,
		model:           DefaultModelName,
		maxOutputTokens: DefaultMaxOutputTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewGenAIClient creates a Gen AI client. Vertex vs Gemini Dev is controlled
// via env vars:
//   - GOOGLE_GENAI_USE_VERTEXAI=True  -> Vertex AI
//   - GOOGLE_CLOUD_PROJECT
//   - GOOGLE_CLOUD_LOCATION
func NewGenAIClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// Extract asks the model to summarize emailText. A reply that is not exactly
// one summarize_email call with valid arguments yields *ExtractionError; a
// failed model call yields *UpstreamError. Context errors are returned as is.
func (e *Extractor) Extract(ctx context.Context, emailText string) (*Summary, error) {
	log := logger.FromContext(ctx)

	contents := BuildContents(emailText)
	resp, err := e.client.GenerateContent(ctx, e.model, contents, e.Config())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &UpstreamError{Err: err}
	}

	summary, err := ParseResponse(resp)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("merchant", summary.Merchant).
		Str("card", summary.Card).
		Float64("amount", summary.Amount).
		Msg("Email summarized")
	return summary, nil
}

// BuildContents wraps the email in <content> tags followed by the extraction
// instruction, as a single user message.
func BuildContents(emailText string) []*genai.Content {
	return []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: "<content>" + emailText + "</content>"},
				{Text: instruction},
			},
		},
	}
}

// Config returns the generation config: temperature 0, capped output and a
// forced call to summarize_email.
func (e *Extractor) Config() *genai.GenerateContentConfig {
	temperature := float32(0)
	return &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: e.maxOutputTokens,
		Tools: []*genai.Tool{
			{FunctionDeclarations: []*genai.FunctionDeclaration{SummarizeEmailDeclaration()}},
		},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{FunctionName},
			},
		},
	}
}

// SummarizeEmailDeclaration describes the summarize_email function.
func SummarizeEmailDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        FunctionName,
		Description: "Extract expense information from email content",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"amount": {
					Type:        genai.TypeNumber,
					Description: "The amount of the transaction",
				},
				"merchant": {
					Type:        genai.TypeString,
					Description: "The merchant or target of the transaction",
				},
				"name": {
					Type:        genai.TypeString,
					Description: "The name of the transaction",
				},
				"card": {
					Type:        genai.TypeString,
					Description: "The card used for the transaction. Infer if its a credit card, debit or a account transaction.",
					Enum:        []string{domain.CardCredit, domain.CardDebit, domain.CardAccount},
				},
			},
			Required: []string{"amount", "merchant", "name", "card"},
		},
	}
}

// summaryArgs detects missing fields and wrong JSON types.
type summaryArgs struct {
	Amount   *float64 `json:"amount"`
	Merchant *string  `json:"merchant"`
	Name     *string  `json:"name"`
	Card     *string  `json:"card"`
}

// ParseResponse validates the reply shape and decodes the call arguments.
func ParseResponse(resp *genai.GenerateContentResponse) (*Summary, error) {
	if resp == nil {
		return nil, newExtractionError("empty response", resp)
	}
	if len(resp.Candidates) != 1 {
		return nil, newExtractionError(fmt.Sprintf("expected 1 candidate, got %d", len(resp.Candidates)), resp)
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) != 1 {
		n := 0
		if content != nil {
			n = len(content.Parts)
		}
		return nil, newExtractionError(fmt.Sprintf("expected 1 content part, got %d", n), resp)
	}

	call := content.Parts[0].FunctionCall
	if call == nil {
		return nil, newExtractionError("content part is not a function call", resp)
	}
	if call.Name != FunctionName {
		return nil, newExtractionError(fmt.Sprintf("unexpected function %q", call.Name), resp)
	}
	if call.Args == nil {
		return nil, newExtractionError("function call has no arguments", resp)
	}

	raw, err := json.Marshal(call.Args)
	if err != nil {
		return nil, newExtractionError("arguments are not JSON: "+err.Error(), resp)
	}
	var args summaryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, newExtractionError("arguments do not match schema: "+err.Error(), resp)
	}

	switch {
	case args.Amount == nil:
		return nil, newExtractionError("missing amount", resp)
	case args.Merchant == nil:
		return nil, newExtractionError("missing merchant", resp)
	case args.Name == nil:
		return nil, newExtractionError("missing name", resp)
	case args.Card == nil:
		return nil, newExtractionError("missing card", resp)
	case !domain.ValidCard(*args.Card):
		return nil, newExtractionError(fmt.Sprintf("invalid card %q", *args.Card), resp)
	}

	return &Summary{
		Amount:   *args.Amount,
		Merchant: *args.Merchant,
		Name:     *args.Name,
		Card:     *args.Card,
	}, nil
}
