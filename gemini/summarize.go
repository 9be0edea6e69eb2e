// Package gemini summarizes transcripts with the Gemini generative API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemPrompt = `Summarize this transcript as concise meeting notes.

Lead with a one-sentence overview, then bullet points for decisions and
action items. Keep the speaker's language.`

type Summarizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewSummarizer(ctx context.Context, apiKey string) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.GenerationConfig.SetMaxOutputTokens(2048)
	model.GenerationConfig.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &Summarizer{client: client, model: model}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", fmt.Errorf("empty transcript")
	}

	resp, err := s.model.GenerateContent(ctx, genai.Text(transcript))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	summary := responseText(resp)
	if summary == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return summary, nil
}

func (s *Summarizer) Close() error {
	return s.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}
