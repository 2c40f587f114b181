// Package media – media.go turns generated bytes into local files the
// tools can upload, and fetches remote audio for transcription.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

// Files writes media produced by the assistant service into the configured
// directories. It implements the image, speech and transcription
// collaborators the tool registry needs.
type Files struct {
	api llm.Media
	cfg config.MediaConfig

	// fetch downloads url next to base, adding the extension of the
	// downloaded format, and returns the file path. Replaced in tests.
	fetch func(ctx context.Context, url, base string) (string, error)

	logger *slog.Logger
}

// New creates a Files rooted at the directories in cfg.
func New(api llm.Media, cfg config.MediaConfig, logger *slog.Logger) *Files {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Files{
		api:    api,
		cfg:    cfg,
		logger: logger.With("component", "media"),
	}
	f.fetch = f.ytdlp
	return f
}

// GenerateImage renders req and saves each image as a PNG.
func (f *Files) GenerateImage(ctx context.Context, req llm.ImageRequest) ([]string, error) {
	if req.Model == "" {
		req.Model = f.cfg.ImageModel
	}
	// dall-e-2 accepts neither quality nor style.
	if req.Model == "dall-e-2" {
		req.Quality, req.Style = "", ""
	}
	if req.Size == "" {
		req.Size = "1024x1024"
	}
	images, err := f.api.GenerateImage(ctx, req)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		path, err := f.write(f.cfg.ImageDir, ".png", img)
		if err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
			return nil, err
		}
		paths = append(paths, path)
	}

	f.logger.Debug("images saved", "count", len(paths), "model", req.Model)
	return paths, nil
}

// Synthesize renders text with voice and saves it as an MP3.
func (f *Files) Synthesize(ctx context.Context, text, voice string) (string, error) {
	return f.SynthesizeWith(ctx, text, voice, "")
}

// SynthesizeWith is Synthesize with an explicit speech model. Empty voice
// and model fall back to the configured defaults.
func (f *Files) SynthesizeWith(ctx context.Context, text, voice, model string) (string, error) {
	if voice == "" {
		voice = f.cfg.DefaultVoice
	}
	if model == "" {
		model = f.cfg.SpeechModel
	}
	audio, err := f.api.Speech(ctx, text, model, voice)
	if err != nil {
		return "", err
	}
	return f.write(f.cfg.VoiceDir, ".mp3", audio)
}

// Transcribe downloads the audio behind rawURL and transcribes it. The
// download is removed afterwards.
func (f *Files) Transcribe(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("transcribing %q: not an absolute http or https URL", rawURL)
	}
	if err := os.MkdirAll(f.cfg.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	base := filepath.Join(f.cfg.DownloadDir, uuid.NewString())

	path, err := f.fetch(ctx, u.String(), base)
	if path != "" {
		defer os.Remove(path)
	}
	if err != nil {
		return "", err
	}

	text, err := f.api.Transcribe(ctx, path, f.cfg.TranscriptionModel)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *Files) write(dir, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ytdlpArgs ends option parsing before the URL so it is never read as a flag.
func ytdlpArgs(rawURL, base string) []string {
	return []string{
		"--no-playlist",
		"-f", "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio",
		"-o", base + ".%(ext)s",
		"--", rawURL,
	}
}

func (f *Files) ytdlp(ctx context.Context, rawURL, base string) (string, error) {
	bin := f.cfg.YTDLP
	if bin == "" {
		bin = "yt-dlp"
	}

	out, err := exec.CommandContext(ctx, bin, ytdlpArgs(rawURL, base)...).CombinedOutput()
	matches, _ := filepath.Glob(base + ".*")
	if err != nil {
		for _, m := range matches {
			os.Remove(m)
		}
		msg := strings.TrimSpace(string(out))
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return "", fmt.Errorf("downloading %s: %w: %s", rawURL, err, msg)
	}
	if len(matches) != 1 {
		for _, m := range matches {
			os.Remove(m)
		}
		return "", fmt.Errorf("downloading %s: expected one file, found %d", rawURL, len(matches))
	}
	return matches[0], nil
}
