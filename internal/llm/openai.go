// Package llm provides an OpenAI-backed hypothesis generator. It is optional:
// without an API key the engine falls back to the rule-based generator.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Songmu/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// Hypothesizer generates root-cause hypotheses through a chat completion.
type Hypothesizer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewHypothesizer constructs the generator from the environment. Returns
// (nil, nil) when OPENAI_API_KEY is unset so callers can treat the generator
// as absent rather than broken.
func NewHypothesizer(logger *slog.Logger) (*Hypothesizer, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := "gpt-4o-mini"
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		model = m
	}

	client := openai.NewClient(option.WithAPIKey(key))
	return &Hypothesizer{client: &client, model: model, logger: logger}, nil
}

type hypothesisPayload struct {
	Description        string   `json:"description"`
	Confidence         float64  `json:"confidence"`
	EvidenceNeeded     []string `json:"evidence_needed"`
	ValidationCriteria string   `json:"validation_criteria"`
}

// Generate asks the model for hypotheses and parses the JSON reply. Transient
// API failures are retried; a malformed reply is an error, not a guess.
func (h *Hypothesizer) Generate(ctx context.Context, incidentType models.IncidentType, evidence models.Evidence, reasoning string) ([]models.Hypothesis, error) {
	prompt := buildPrompt(incidentType, evidence, reasoning)

	var content string
	err := retry.Retry(3, 3*time.Second, func() error {
		resp, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: h.model,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from OpenAI")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai hypothesis generation failed: %w", err)
	}

	var payload []hypothesisPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("parse hypothesis response: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("model returned no hypotheses")
	}

	hypotheses := make([]models.Hypothesis, 0, len(payload))
	for _, p := range payload {
		hypotheses = append(hypotheses, models.Hypothesis{
			Description:        p.Description,
			Confidence:         p.Confidence,
			EvidenceNeeded:     p.EvidenceNeeded,
			ValidationCriteria: p.ValidationCriteria,
		})
	}

	h.logger.Debug("hypotheses generated by model", slog.Int("count", len(hypotheses)))
	return hypotheses, nil
}

func buildPrompt(incidentType models.IncidentType, evidence models.Evidence, reasoning string) string {
	var b strings.Builder
	b.WriteString("You are a site reliability engineer investigating a production incident.\n\n")
	fmt.Fprintf(&b, "Incident type: %s\n", incidentType)
	if reasoning != "" {
		fmt.Fprintf(&b, "Triage reasoning: %s\n", reasoning)
	}
	b.WriteString("\nMetrics:\n")
	for name, value := range evidence.Metrics {
		fmt.Fprintf(&b, "- %s: %.2f\n", name, value)
	}
	if len(evidence.Logs) > 0 {
		b.WriteString("\nRecent logs:\n")
		for _, line := range evidence.Logs {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	for _, d := range evidence.RecentDeploys {
		fmt.Fprintf(&b, "\nDeploy: %s at %s by %s\n", d.Version, d.DeployedAt.Format(time.RFC3339), d.DeployedBy)
	}
	b.WriteString(`
Propose up to 3 root-cause hypotheses. Reply with only a JSON array where each
element has: description (string), confidence (0..1), evidence_needed (array
of strings), validation_criteria (string).`)
	return b.String()
}

// extractJSON strips markdown code fences the model sometimes wraps around
// the payload.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
