package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

type fakeMedia struct {
	images     [][]byte
	speechArgs []string
	transcribe string
	seenPath   string
	lastImage  llm.ImageRequest
	err        error
}

func (f *fakeMedia) GenerateImage(_ context.Context, req llm.ImageRequest) ([][]byte, error) {
	f.lastImage = req
	return f.images, f.err
}

func (f *fakeMedia) Speech(_ context.Context, text, model, voice string) ([]byte, error) {
	f.speechArgs = []string{text, model, voice}
	return []byte("ID3"), f.err
}

func (f *fakeMedia) Transcribe(_ context.Context, path, _ string) (string, error) {
	f.seenPath = path
	_, statErr := os.Stat(path)
	if statErr != nil {
		return "", statErr
	}
	return f.transcribe, f.err
}

func testConfig(t *testing.T) config.MediaConfig {
	dir := t.TempDir()
	return config.MediaConfig{
		ImageDir:     filepath.Join(dir, "images"),
		VoiceDir:     filepath.Join(dir, "voice"),
		DownloadDir:  filepath.Join(dir, "downloads"),
		SpeechModel:  "tts-1",
		DefaultVoice: "nova",
	}
}

func TestGenerateImageWritesFiles(t *testing.T) {
	api := &fakeMedia{images: [][]byte{[]byte("png1"), []byte("png2")}}
	f := New(api, testConfig(t), nil)

	paths, err := f.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "cat"})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, ".png", filepath.Ext(p))
		assert.FileExists(t, p)
	}
	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "png2", string(data))
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	api := &fakeMedia{}
	f := New(api, testConfig(t), nil)

	path, err := f.Synthesize(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, ".mp3", filepath.Ext(path))
	assert.Equal(t, []string{"hello", "tts-1", "nova"}, api.speechArgs)
}

func TestTranscribeRemovesDownload(t *testing.T) {
	api := &fakeMedia{transcribe: "hello world"}
	f := New(api, testConfig(t), nil)

	var fetched string
	f.fetch = func(_ context.Context, url, base string) (string, error) {
		fetched = url
		path := base + ".webm"
		return path, os.WriteFile(path, []byte("audio"), 0o644)
	}

	text, err := f.Transcribe(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "https://example.com/v", fetched)
	assert.Equal(t, ".webm", filepath.Ext(api.seenPath))
	assert.NoFileExists(t, api.seenPath)
}

func TestTranscribeFetchError(t *testing.T) {
	f := New(&fakeMedia{}, testConfig(t), nil)
	f.fetch = func(context.Context, string, string) (string, error) { return "", errors.New("no network") }

	_, err := f.Transcribe(context.Background(), "https://example.com/v")
	assert.ErrorContains(t, err, "no network")
}

func TestTranscribeRejectsNonHTTPInput(t *testing.T) {
	f := New(&fakeMedia{}, testConfig(t), nil)
	f.fetch = func(context.Context, string, string) (string, error) {
		t.Fatal("fetch must not run")
		return "", nil
	}

	for _, in := range []string{"--exec=touch /tmp/x", "--config-location=/tmp/c", "file:///etc/passwd", "ftp://host/a"} {
		_, err := f.Transcribe(context.Background(), in)
		assert.ErrorContains(t, err, "not an absolute http or https URL", in)
	}
}

func TestYTDLPArgsSeparateURL(t *testing.T) {
	args := ytdlpArgs("https://example.com/v", "/tmp/dl/abc")

	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, []string{"--", "https://example.com/v"}, args[len(args)-2:])
	assert.Contains(t, args, "/tmp/dl/abc.%(ext)s")
}

func TestYTDLPFindsDownloadedFile(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("needs /bin/sh")
	}
	dir := t.TempDir()
	argv := filepath.Join(dir, "argv")
	bin := filepath.Join(dir, "fake-yt-dlp")
	// Records its arguments and writes the file named by -o with a webm extension.
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argv + "\n" +
		"while [ $# -gt 0 ]; do if [ \"$1\" = -o ]; then out=$2; fi; shift; done\n" +
		"touch \"$(echo \"$out\" | sed 's/%(ext)s/webm/')\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	cfg := testConfig(t)
	cfg.YTDLP = bin
	api := &fakeMedia{transcribe: "ok"}
	f := New(api, cfg, nil)

	text, err := f.Transcribe(context.Background(), "https://example.com/watch?v=1")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, ".webm", filepath.Ext(api.seenPath))

	recorded, err := os.ReadFile(argv)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(recorded)), "\n")
	assert.Equal(t, []string{"--", "https://example.com/watch?v=1"}, lines[len(lines)-2:])
}

func TestGenerateImageDropsDallE2Options(t *testing.T) {
	api := &fakeMedia{images: [][]byte{[]byte("png")}}
	f := New(api, testConfig(t), nil)

	_, err := f.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "cat", Model: "dall-e-2", Quality: "hd", Style: "vivid"})
	require.NoError(t, err)
	assert.Equal(t, llm.ImageRequest{Prompt: "cat", Model: "dall-e-2", Size: "1024x1024"}, api.lastImage)
}

func TestJanitorSweep(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.png")
	fresh := filepath.Join(dir, "fresh.png")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))

	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	j := NewJanitor([]string{dir, filepath.Join(dir, "missing")}, 24*time.Hour, nil)
	j.now = func() time.Time { return now }

	assert.Equal(t, 1, j.Sweep())
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}
