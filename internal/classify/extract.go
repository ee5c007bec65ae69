package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/kindred/internal/faults"
	"github.com/user/kindred/pkg/llm"
)

const extractInstruction = `You are an expert at detecting important upcoming or recent events that someone might want follow-up on. Analyze the user's message and determine:

1. If there's an important event mentioned (exam, interview, appointment, date, presentation, meeting, deadline, party, etc.)
2. The type of event (use the categories below)
3. The timing context (when it's happening or happened)

IMPORTANT: only detect events that are:
- Significant enough that a caring friend would follow up about
- Have clear timing indicators (today, tomorrow, next week, yesterday, etc.)
- Are specific events, not general activities

Return your analysis in this EXACT JSON format:
{
    "has_event": true/false,
    "event_type": "exam" or "interview" or "appointment" or "date" or "presentation" or "meeting" or "deadline" or "party" or "other",
    "timing": "today" or "tomorrow" or "yesterday" or "next week" or "this weekend" or "next month" or "specific timing phrase",
    "confidence": 0.0-1.0
}

Only return has_event: true if you're confident (>0.7) there's a real important event with timing.`

// eventTypes is the allowed event_type enum.
var eventTypes = map[string]bool{
	"exam":         true,
	"interview":    true,
	"appointment":  true,
	"date":         true,
	"presentation": true,
	"meeting":      true,
	"deadline":     true,
	"party":        true,
	"other":        true,
}

// Extraction is the validated structured answer of one extraction call.
type Extraction struct {
	HasEvent   bool    `json:"has_event"`
	EventType  string  `json:"event_type"`
	Timing     string  `json:"timing"`
	Confidence float64 `json:"confidence"`
}

// Extractor pulls life events out of free-form messages via structured
// extraction. The model's text is parsed defensively: a JSON object is
// accepted wherever it appears, but once found it must satisfy the schema.
type Extractor struct {
	provider llm.Provider
}

// NewExtractor creates an Extractor backed by the given provider.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract returns the detected event, or nil when the message carries none
// or the model is not confident enough. Schema violations are reported as
// *faults.ClassificationError for the caller to absorb.
func (e *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	out, err := e.provider.Invoke(ctx, extractInstruction, []llm.Message{
		llm.User(fmt.Sprintf("Analyze this message for important events: %q", text)),
	})
	if err != nil {
		return nil, &faults.ClassificationError{Stage: "event extraction", Cause: err}
	}
	return parseExtraction(out)
}

func parseExtraction(out string) (*Extraction, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("no JSON object in output"),
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out[start:end+1]), &raw); err != nil {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("invalid JSON: %w", err),
		}
	}
	if _, ok := raw["has_event"]; !ok {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("missing has_event key"),
		}
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(out[start:end+1]), &ext); err != nil {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("bad field types: %w", err),
		}
	}

	if ext.Confidence < 0 || ext.Confidence > 1 {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("confidence %v out of range", ext.Confidence),
		}
	}

	if !ext.HasEvent || ext.Confidence < 0.7 {
		return nil, nil
	}

	ext.EventType = strings.ToLower(strings.TrimSpace(ext.EventType))
	if !eventTypes[ext.EventType] {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("unknown event type %q", ext.EventType),
		}
	}
	if strings.TrimSpace(ext.Timing) == "" {
		return nil, &faults.ClassificationError{
			Stage: "event extraction",
			Cause: fmt.Errorf("event without timing"),
		}
	}
	return &ext, nil
}
