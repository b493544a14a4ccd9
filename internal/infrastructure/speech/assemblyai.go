// Package speech 语音转写适配器
package speech

import (
	"context"
	"fmt"
	"time"

	assemblyai "github.com/AssemblyAI/assemblyai-go-sdk"
	"go.opentelemetry.io/otel/attribute"

	"memoir-ai-api/internal/config"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/tracer"
)

// AssemblyAITranscriber 基于 AssemblyAI 的音频片段转写
type AssemblyAITranscriber struct {
	client  *assemblyai.Client
	timeout time.Duration
}

// NewAssemblyAITranscriber 未配置 api key 时返回 nil，调用方据此关闭音频片段能力
func NewAssemblyAITranscriber(cfg *config.Config) *AssemblyAITranscriber {
	ac := cfg.Speech.AssemblyAI
	if ac.APIKey == "" {
		return nil
	}
	timeout := ac.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &AssemblyAITranscriber{
		client:  assemblyai.NewClient(ac.APIKey),
		timeout: timeout,
	}
}

// TranscribeURL 提交远程音频并等待转写完成
func (t *AssemblyAITranscriber) TranscribeURL(ctx context.Context, audioURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "assemblyai.TranscribeURL")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, audioURL, nil)
	if err != nil {
		tracer.Fail(span, err)
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	if transcript.Status == assemblyai.TranscriptStatusError {
		msg := "unknown error"
		if transcript.Error != nil {
			msg = *transcript.Error
		}
		err := fmt.Errorf("transcription failed: %s", msg)
		tracer.Fail(span, err)
		return "", err
	}

	text := ""
	if transcript.Text != nil {
		text = *transcript.Text
	}
	span.SetAttributes(attribute.Int("speech.transcript_length", len(text)))
	logger.Debug(ctx, "audio clip transcribed",
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}
