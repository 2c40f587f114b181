// Package llm – openai.go implements Threads, Assistants and Media on top of
// the OpenAI Assistants, Images and Audio APIs.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

// messagePageSize bounds the message listing used to find a run's reply.
const messagePageSize = 20

// OpenAIClient talks to the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a client from the openai config section.
func NewOpenAIClient(cfg config.OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client: &client,
		logger: logger.With("component", "llm"),
	}
}

// ── Threads ──

// CreateThread creates an empty remote thread.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", thread.ID)
	return thread.ID, nil
}

// AppendMessage adds a user-role message to the thread.
func (c *OpenAIClient) AppendMessage(ctx context.Context, threadID, text string) error {
	_, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// CreateRun starts a run of assistantID over the thread.
func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return toRun(run), nil
}

// RetrieveRun fetches the current state of a run.
func (c *OpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("retrieving run: %w", err)
	}
	return toRun(run), nil
}

// SubmitToolOutputs answers the pending tool calls of a run in one batch.
func (c *OpenAIClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.CallID),
			Output:     openai.String(o.Output),
		})
	}

	if _, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params); err != nil {
		return fmt.Errorf("submitting tool outputs: %w", err)
	}
	return nil
}

// CancelRun requests cancellation of a run.
func (c *OpenAIClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancelling run: %w", err)
	}
	return nil
}

// LatestAssistantMessage returns the newest assistant message of runID.
func (c *OpenAIClient) LatestAssistantMessage(ctx context.Context, threadID, runID string) ([]ContentBlock, error) {
	params := openai.BetaThreadMessageListParams{
		Limit: openai.Int(messagePageSize),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	}
	if runID != "" {
		params.RunID = openai.String(runID)
	}

	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	for _, msg := range page.Data {
		if string(msg.Role) != "assistant" {
			continue
		}
		blocks := make([]ContentBlock, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Type {
			case "text":
				blocks = append(blocks, ContentBlock{Kind: ContentText, Text: part.Text.Value})
			case "refusal":
				blocks = append(blocks, ContentBlock{Kind: ContentRefusal, Text: part.Refusal})
			case "image_file":
				blocks = append(blocks, ContentBlock{Kind: ContentImageFile, Text: part.ImageFile.FileID})
			case "image_url":
				blocks = append(blocks, ContentBlock{Kind: ContentImageURL, Text: part.ImageURL.URL})
			}
		}
		return blocks, nil
	}

	return nil, errors.New("no assistant message found")
}

func toRun(r *openai.Run) *Run {
	run := &Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      RunStatus(r.Status),
		LastError:   r.LastError.Message,
	}
	if run.LastError == "" && r.IncompleteDetails.Reason != "" {
		run.LastError = string(r.IncompleteDetails.Reason)
	}
	for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		run.ToolCalls = append(run.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return run
}

// ── Assistants ──

// ListAssistants pages through every assistant of the account.
func (c *OpenAIClient) ListAssistants(ctx context.Context) ([]Assistant, error) {
	iter := c.client.Beta.Assistants.ListAutoPaging(ctx, openai.BetaAssistantListParams{
		Limit: openai.Int(100),
	})

	var out []Assistant
	for iter.Next() {
		a := iter.Current()
		md := make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			md[k] = v
		}
		out = append(out, Assistant{
			ID:           a.ID,
			Name:         a.Name,
			Description:  a.Description,
			Model:        a.Model,
			Instructions: a.Instructions,
			Metadata:     md,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing assistants: %w", err)
	}
	return out, nil
}

// UpdateAssistantMetadata replaces the metadata of an assistant.
func (c *OpenAIClient) UpdateAssistantMetadata(ctx context.Context, assistantID string, metadata map[string]string) error {
	_, err := c.client.Beta.Assistants.Update(ctx, assistantID, openai.BetaAssistantUpdateParams{
		Metadata: shared.Metadata(metadata),
	})
	if err != nil {
		return fmt.Errorf("updating assistant metadata: %w", err)
	}
	return nil
}

// UpdateAssistantTools replaces the function tools of an assistant.
func (c *OpenAIClient) UpdateAssistantTools(ctx context.Context, assistantID string, defs []FunctionDefinition) error {
	tools := make([]openai.AssistantToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        d.Name,
					Description: openai.String(d.Description),
					Parameters:  d.Parameters,
				},
			},
		})
	}

	_, err := c.client.Beta.Assistants.Update(ctx, assistantID, openai.BetaAssistantUpdateParams{
		Tools: tools,
	})
	if err != nil {
		return fmt.Errorf("updating assistant tools: %w", err)
	}
	return nil
}

// ── Media ──

// GenerateImage returns the decoded bytes of each generated image.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) ([][]byte, error) {
	params := openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(req.Model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.Quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(req.Quality)
	}
	if req.Style != "" {
		params.Style = openai.ImageGenerateParamsStyle(req.Style)
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}

	images := make([][]byte, 0, len(resp.Data))
	for _, img := range resp.Data {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}

// Speech synthesizes text to mp3 audio.
func (c *OpenAIClient) Speech(ctx context.Context, text, model, voice string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech: %w", err)
	}
	return data, nil
}

// Transcribe converts an audio file to text.
func (c *OpenAIClient) Transcribe(ctx context.Context, path, model string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	t, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(model),
	})
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return t.Text, nil
}
