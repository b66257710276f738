// Package ollama runs instruction/context prompts against an Ollama server.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"llmalfr-go/alfr"
	"llmalfr-go/logger"
)

const (
	DefaultModel   = "hf.co/elyza/Llama-3-ELYZA-JP-8B-GGUF:latest"
	DefaultBaseURL = "http://localhost:11434/api"
)

// Options are Ollama generation options, keyed as the API expects
type Options map[string]any

// DefaultOptions returns the generation options tuned for Japanese output
func DefaultOptions() Options {
	return Options{
		"temperature":       0.6,
		"top_p":             0.88,
		"top_k":             40,
		"num_predict":       2048,
		"repeat_penalty":    1.2,
		"presence_penalty":  0.2,
		"frequency_penalty": 0.2,
		"stop":              []string{"\n\n", "。\n"},
		"seed":              0,
	}
}

// Processor sends prompts to Ollama's /generate endpoint
type Processor struct {
	model    string
	baseURL  string
	client   *http.Client
	defaults Options
	log      logger.Logger
}

var _ alfr.Processor = (*Processor)(nil)

// Option configures a Processor
type Option func(*Processor)

func WithModel(model string) Option {
	return func(p *Processor) { p.model = model }
}

func WithBaseURL(url string) Option {
	return func(p *Processor) { p.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Processor) { p.client = c }
}

// WithOptions merges opts over the default generation options
func WithOptions(opts Options) Option {
	return func(p *Processor) { maps.Copy(p.defaults, opts) }
}

func WithLogger(l logger.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// NewProcessor creates a Processor for the default model on localhost
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		model:    DefaultModel,
		baseURL:  DefaultBaseURL,
		client:   &http.Client{Timeout: 10 * time.Minute},
		defaults: DefaultOptions(),
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the Ollama model name
func (p *Processor) Model() string { return p.model }

// Process joins instruction and text and returns the model's response
func (p *Processor) Process(ctx context.Context, instruction, text string) (string, error) {
	return p.ProcessWithOptions(ctx, instruction, text, nil)
}

// ProcessWithOptions is Process with per-call option overrides
func (p *Processor) ProcessWithOptions(ctx context.Context, instruction, text string, overrides Options) (string, error) {
	return p.Generate(ctx, alfr.JoinPrompt(instruction, text), overrides)
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Generate sends prompt as-is with the merged options
func (p *Processor) Generate(ctx context.Context, prompt string, overrides Options) (string, error) {
	merged := maps.Clone(p.defaults)
	maps.Copy(merged, overrides)

	body, err := json.Marshal(generateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Options: merged,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", fmt.Errorf("ollama returned %s: %s", resp.Status, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", decodeErr)
	}

	p.log.Debug("ollama generate",
		"model", p.model,
		"prompt_runes", len([]rune(prompt)),
		"response_runes", len([]rune(out.Response)),
		"elapsed", time.Since(start))

	return out.Response, nil
}
