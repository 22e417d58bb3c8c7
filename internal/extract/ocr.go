package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const transcribePrompt = "Transcribe every line of text in this document exactly as written, one line per output line. Do not summarize, translate, or add commentary."

const transcribeSystem = "You are an OCR engine for building inspection and thermal imaging reports. Output only the transcribed text."

// Transcriber recovers text from scanned pages or images.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaType string, data []byte) (string, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicTranscriber struct {
	messages AnthropicMessager
	model    anthropic.Model
}

func NewAnthropicTranscriber(apiKey string) (*AnthropicTranscriber, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	return &AnthropicTranscriber{
		messages: newAnthropicClient(apiKey),
		model:    anthropic.ModelClaudeSonnet4_20250514,
	}, nil
}

func (a *AnthropicTranscriber) Transcribe(ctx context.Context, mediaType string, data []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	var source anthropic.ContentBlockParamUnion
	if mediaType == "application/pdf" {
		source = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded})
	} else {
		source = anthropic.NewImageBlockBase64(mediaType, encoded)
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   8192,
		System:      []anthropic.TextBlockParam{{Text: transcribeSystem}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(source, anthropic.NewTextBlock(transcribePrompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

func (e *Extractor) imageText(ctx context.Context, doc *Document, ext string, blob []byte) (string, error) {
	if e.transcriber == nil {
		doc.Method = MethodNone
		doc.Notes = append(doc.Notes, "OCR unavailable: no transcriber configured for image input")
		return "", nil
	}
	text, err := e.transcriber.Transcribe(ctx, imageMediaTypes[ext], blob)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		doc.Method = MethodNone
		doc.Notes = append(doc.Notes, fmt.Sprintf("OCR unavailable: %v", err))
		return "", nil
	}
	doc.Method = MethodOCR
	doc.Notes = append(doc.Notes, "OCR text extracted from image")
	return text, nil
}
