package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/petitionlens/internal/model"
	"golang.org/x/net/html"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Classify asks the model for a single topic label for one petition
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ClassifyRequest contains the input for topic classification
type ClassifyRequest struct {
	// Petition is the record being classified
	Petition *model.Petition

	// Topics is the label set the model must choose from
	Topics []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// ClassifyResponse contains the raw label returned by the model
type ClassifyResponse struct {
	// Label is the trimmed model output, not yet mapped onto the taxonomy
	Label string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: defaultMaxTokens,
	}
}

// A label is a few words; anything longer is the model ignoring instructions
const defaultMaxTokens = 20

const systemPrompt = "You classify UK Parliament petitions by subject. Reply with exactly one topic from the list you are given and nothing else."

// BuildPrompt constructs the classification prompt from a petition's free-text fields
func BuildPrompt(p *model.Petition, topics []string) string {
	var b strings.Builder

	b.WriteString("Choose the single best topic for the petition below.\n\nAllowed topics:\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s\n", t)
	}

	b.WriteString("\nIf none fit, answer \"other\".\n\nPetition:\n")
	b.WriteString(StripMarkup(p.DescriptionText()))
	b.WriteString("\nTopic:")

	return b.String()
}

// StripMarkup removes HTML tags and collapses whitespace in petition text
func StripMarkup(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpaces(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" || string(name) == "p" {
				b.WriteByte('\n')
			}
		}
	}
}

// collapseSpaces squeezes runs of blanks within each line and drops empty trailing space
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

type resolvedRequest struct {
	prompt    string
	model     string
	maxTokens int
}

// resolve fills request defaults from provider configuration
func (r ClassifyRequest) resolve(config Config, fallbackModel string) (resolvedRequest, error) {
	out := resolvedRequest{prompt: r.Prompt, model: r.Model, maxTokens: r.MaxTokens}

	if out.prompt == "" {
		if r.Petition == nil {
			return out, fmt.Errorf("classify request needs a petition or a prompt")
		}
		out.prompt = BuildPrompt(r.Petition, r.Topics)
	}

	if out.model == "" {
		out.model = config.Model
	}
	if out.model == "" {
		out.model = fallbackModel
	}

	if out.maxTokens == 0 {
		out.maxTokens = config.MaxTokens
	}
	if out.maxTokens == 0 {
		out.maxTokens = defaultMaxTokens
	}
	return out, nil
}

// cleanLabel trims model output down to its first line without quotes or trailing punctuation
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'`*. ")
	return strings.TrimSpace(s)
}
