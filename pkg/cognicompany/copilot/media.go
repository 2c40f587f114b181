package copilot

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/relay"
)

const (
	// transcribePrefix starts a chat message asking for a transcript of the
	// first link it contains.
	transcribePrefix = "!stt"

	transcribeTimeout = 10 * time.Minute
)

var (
	errMediaDisabled = errors.New("media generation is not configured")

	linkPattern = regexp.MustCompile(`https?://[^\s<>]+`)
)

func isTranscribeCommand(content string) bool {
	fields := strings.Fields(content)
	return len(fields) > 0 && strings.EqualFold(fields[0], transcribePrefix)
}

// handleTranscribe answers a !stt message with the transcript of its first
// link, split to the chat platform's message size. The message is not
// added to the conversation.
func (a *Assistant) handleTranscribe(msg *channels.IncomingMessage, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(a.ctx, transcribeTimeout)
	defer cancel()

	stopTyping := a.startTyping(msg.ChannelID, logger)
	reply, err := a.transcribeLink(ctx, msg.Content)
	stopTyping()
	if err != nil {
		logger.Warn("transcription failed", "error", err)
		reply = "error: " + err.Error()
	}

	for _, chunk := range relay.SplitMessage(reply, a.config.Relay.ChunkBudget) {
		if err := a.gateway.Send(ctx, msg.ChannelID, &channels.OutgoingMessage{Content: chunk}); err != nil {
			logger.Error("failed to deliver transcript", "error", err)
			return
		}
	}
	logger.Info("transcript delivered", "chars", len([]rune(reply)))
}

func (a *Assistant) transcribeLink(ctx context.Context, content string) (string, error) {
	link := linkPattern.FindString(content)
	if link == "" {
		return "No url found", nil
	}
	if a.files == nil {
		return "", errMediaDisabled
	}

	u, err := a.hosts.CheckURL(ctx, link)
	if err != nil {
		return "", err
	}
	text, err := a.files.Transcribe(ctx, u.String())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "No speech found", nil
	}
	return text, nil
}

func (a *Assistant) imageCommand(ctx context.Context, opts map[string]string) (string, []string, error) {
	if a.files == nil {
		return "", nil, errMediaDisabled
	}
	prompt := strings.TrimSpace(opts["prompt"])
	if prompt == "" {
		return "Missing prompt", nil, nil
	}

	paths, err := a.files.GenerateImage(ctx, llm.ImageRequest{
		Prompt:  prompt,
		Model:   opts["model"],
		Quality: opts["quality"],
		Style:   opts["style"],
	})
	if err != nil {
		return "", paths, err
	}
	return "Prompt: " + prompt, paths, nil
}

func (a *Assistant) ttsCommand(ctx context.Context, opts map[string]string) (string, []string, error) {
	if a.files == nil {
		return "", nil, errMediaDisabled
	}
	text := strings.TrimSpace(opts["text"])
	if text == "" {
		return "Missing text", nil, nil
	}

	model := ""
	if opts["quality"] == "hd" {
		model = "tts-1-hd"
	}
	path, err := a.files.SynthesizeWith(ctx, text, opts["voice"], model)
	if err != nil {
		return "", nil, err
	}
	return "Prompt: " + text, []string{path}, nil
}
