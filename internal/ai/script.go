package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"shorts-gen/internal"
	"shorts-gen/internal/logging"
)

const (
	geminiModel = "gemini-2.0-flash"

	systemPrompt = "You are an enlightened spiritual narrator."
	scriptPrompt = `You are a mystical philosopher like Alan Watts or Terence McKenna.
Speak on the topic "%s" with poetic, dreamy and esoteric language. Make it 60-90 seconds long when read aloud, starting with a hook and ending on a profound note.
Also suggest a one or two word stock footage search query that fits the mood (for example "cosmic", "fractal", "nature").
Respond in JSON: {"narration": "...", "visual_query": "..."}`
)

// Script is the narration for one unit plus a stock footage hint.
type Script struct {
	Narration   string `json:"narration" jsonschema_description:"The narration text, 60-90 seconds when read aloud, no stage directions."`
	VisualQuery string `json:"visual_query" jsonschema_description:"One or two words to search portrait stock footage with."`
}

// ScriptWriter produces narration for a topic.
type ScriptWriter interface {
	Write(ctx context.Context, topic string) (Script, error)
}

// NewScriptWriter picks the configured provider.
func NewScriptWriter(cfg internal.Config, log *logging.Logger) (ScriptWriter, error) {
	switch cfg.ScriptProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for SCRIPT_PROVIDER=openai")
		}
		return NewOpenAIWriter(cfg.OpenAIAPIKey, log), nil
	case "gemini", "":
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY or GOOGLE_API_KEY is required for SCRIPT_PROVIDER=gemini")
		}
		return NewGeminiWriter(cfg.GeminiAPIKey, log), nil
	}
	return nil, fmt.Errorf("unknown script provider %q", cfg.ScriptProvider)
}

type GeminiWriter struct {
	apiKey string
	log    *logging.Logger
}

func NewGeminiWriter(apiKey string, log *logging.Logger) *GeminiWriter {
	return &GeminiWriter{apiKey: apiKey, log: log}
}

func (w *GeminiWriter) Write(ctx context.Context, topic string) (Script, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  w.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Script{}, fmt.Errorf("genai client: %w", err)
	}
	resp, err := client.Models.GenerateContent(ctx, geminiModel, []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(scriptPrompt, topic), genai.RoleUser),
	}, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return Script{}, fmt.Errorf("generate content: %w", err)
	}
	s, err := ParseScript(resp.Text())
	if err != nil {
		return Script{}, err
	}
	w.log.Infof("ai: gemini script for %q (%d chars, query %q)", topic, len(s.Narration), s.VisualQuery)
	return s, nil
}

// GenerateSchema reflects T into a strict JSON schema for structured output.
func GenerateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var scriptSchema = GenerateSchema[Script]()

type OpenAIWriter struct {
	client openai.Client
	log    *logging.Logger
}

func NewOpenAIWriter(apiKey string, log *logging.Logger) *OpenAIWriter {
	return &OpenAIWriter{client: openai.NewClient(option.WithAPIKey(apiKey)), log: log}
}

func (w *OpenAIWriter) Write(ctx context.Context, topic string) (Script, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "narration_script",
		Description: openai.String("Narration script for a short video"),
		Schema:      scriptSchema,
		Strict:      openai.Bool(true),
	}
	completion, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf(scriptPrompt, topic)),
		},
		Model: openai.ChatModelGPT4oMini,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
	})
	if err != nil {
		return Script{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Script{}, errors.New("no response from OpenAI")
	}
	s, err := ParseScript(completion.Choices[0].Message.Content)
	if err != nil {
		return Script{}, err
	}
	w.log.Infof("ai: openai script for %q (%d chars, query %q)", topic, len(s.Narration), s.VisualQuery)
	return s, nil
}

// ParseScript reads a model reply. JSON (optionally fenced) is preferred;
// any other non-empty reply is taken as the narration itself.
func ParseScript(raw string) (Script, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return Script{}, errors.New("empty script")
	}
	var s Script
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return Script{}, fmt.Errorf("parse script json: %w", err)
		}
	} else {
		s.Narration = text
	}
	s.Narration = strings.TrimSpace(s.Narration)
	s.VisualQuery = strings.TrimSpace(s.VisualQuery)
	if s.Narration == "" {
		return Script{}, errors.New("script has no narration")
	}
	return s, nil
}
