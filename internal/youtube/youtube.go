// Package youtube extracts transcripts from YouTube videos: caption
// tracks when available, falling back to Whisper audio transcription
// otherwise. No YouTube library exists anywhere in the example corpus;
// github.com/kkdai/youtube/v2 is named here (not corpus-grounded, see
// DESIGN.md) for metadata/caption-track fetching.
package youtube

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	ytclient "github.com/kkdai/youtube/v2"
)

// Transcript is the extracted result for one video.
type Transcript struct {
	VideoID string
	Title   string
	Text    string
	Source  string // "captions" | "whisper"
}

// Extractor fetches a video's transcript, preferring caption tracks and
// falling back to Whisper-based audio transcription when no caption
// track exists.
type Extractor struct {
	client       *ytclient.Client
	whisperModel string // path to a ggml model for whisper.cpp
}

// New builds an Extractor. whisperModelPath may be empty, in which case
// the audio-transcription fallback is unavailable and videos without
// captions fail with an explicit error rather than silently skipping.
func New(whisperModelPath string) *Extractor {
	return &Extractor{client: &ytclient.Client{}, whisperModel: whisperModelPath}
}

// Extract fetches metadata and captions for videoURL, falling back to
// Whisper transcription of the downloaded audio track when no caption
// track is available.
func (e *Extractor) Extract(ctx context.Context, videoURL string) (Transcript, error) {
	video, err := e.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return Transcript{}, fmt.Errorf("youtube: fetch video metadata: %w", err)
	}

	if text, ok := e.captionText(ctx, video); ok {
		return Transcript{VideoID: video.ID, Title: video.Title, Text: text, Source: "captions"}, nil
	}

	if e.whisperModel == "" {
		return Transcript{}, fmt.Errorf("youtube: no caption track for %s and no whisper model configured", video.ID)
	}
	text, err := e.transcribeAudio(ctx, video)
	if err != nil {
		return Transcript{}, fmt.Errorf("youtube: audio transcription fallback: %w", err)
	}
	return Transcript{VideoID: video.ID, Title: video.Title, Text: text, Source: "whisper"}, nil
}

func (e *Extractor) captionText(ctx context.Context, video *ytclient.Video) (string, bool) {
	for _, track := range video.CaptionTracks {
		transcript, err := e.client.GetTranscriptCtx(ctx, video, track.LanguageCode)
		if err != nil || len(transcript) == 0 {
			continue
		}
		var sb strings.Builder
		for _, seg := range transcript {
			sb.WriteString(seg.Text)
			sb.WriteString(" ")
		}
		return strings.TrimSpace(sb.String()), true
	}
	return "", false
}

// transcribeAudio downloads the first listed format that carries audio and runs it
// through whisper.cpp's command-line binary, following the teacher's
// internal/git pattern of wrapping external binaries with structured
// error translation. This is a last resort: no caption-track-free path
// is attempted before it.
func (e *Extractor) transcribeAudio(ctx context.Context, video *ytclient.Video) (string, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio-only format available")
	}
	stream, _, err := e.client.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return "", fmt.Errorf("download audio stream: %w", err)
	}
	defer stream.Close()

	cmd := exec.CommandContext(ctx, "whisper-cli", "-m", e.whisperModel, "--output-txt", "-")
	cmd.Stdin = stream
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("whisper-cli: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
