package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

const imageSize = "1024x1024"

type voiceKey struct{}

// WithVoice returns a context in which tts defaults to voice, the voice of
// the persona whose run dispatches the call.
func WithVoice(ctx context.Context, voice string) context.Context {
	if voice == "" {
		return ctx
	}
	return context.WithValue(ctx, voiceKey{}, voice)
}

func voiceFrom(ctx context.Context) string {
	v, _ := ctx.Value(voiceKey{}).(string)
	return v
}

func (r *Registry) image(ctx context.Context, args ImageArgs) (any, error) {
	req := llm.ImageRequest{
		Prompt:  args.Prompt,
		Model:   args.Model,
		Quality: args.Quality,
		Style:   args.Style,
		Size:    imageSize,
	}
	if req.Model == "" {
		req.Model = r.env.ImageModel
	}

	paths, err := r.env.Images.GenerateImage(ctx, req)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		url, err := r.publish(ctx, r.env.ImageBucket, p)
		if err != nil {
			return nil, err
		}
		urls = append(urls, url)
	}
	return map[string]any{"urls": urls}, nil
}

func (r *Registry) tts(ctx context.Context, args TTSArgs) (any, error) {
	voice := args.Voice
	if voice == "" {
		voice = voiceFrom(ctx)
	}
	if voice == "" {
		voice = r.env.DefaultVoice
	}

	path, err := r.env.Speech.Synthesize(ctx, args.Content, voice)
	if err != nil {
		return nil, err
	}

	url, err := r.publish(ctx, r.env.AudioBucket, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": url}, nil
}

func (r *Registry) transcribe(ctx context.Context, args TranscribeArgs) (any, error) {
	u, err := r.env.Hosts.CheckURL(ctx, args.URL)
	if err != nil {
		return nil, err
	}
	text, err := r.env.Transcriber.Transcribe(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return map[string]string{"transcript": text}, nil
}

// publish uploads a local file and removes it once uploaded.
func (r *Registry) publish(ctx context.Context, bucket, path string) (string, error) {
	url, err := r.env.Uploader.Upload(ctx, bucket, path)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove uploaded file", "path", path, "error", err)
	}
	return url, nil
}
