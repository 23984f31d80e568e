package extractor

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// ExtractionError reports a model reply that does not match the
// summarize_email contract.
type ExtractionError struct {
	Reason string
	// Response is the JSON dump of the offending reply.
	Response string
}

func newExtractionError(reason string, resp *genai.GenerateContentResponse) *ExtractionError {
	dump, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		dump = []byte(fmt.Sprintf("%+v", resp))
	}
	return &ExtractionError{Reason: reason, Response: string(dump)}
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("invalid response structure: %s: %s", e.Reason, e.Response)
}

// UpstreamError wraps a failed model call.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to get email summary from model: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
