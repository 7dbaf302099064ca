// Package analyzer talks to the Gemini REST API. Two call shapes: a
// transcription call that uploads video bytes inline and returns the speech
// transcript, and a flagging call that judges an item's caption and
// transcript and returns a JSON verdict.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
)

const noSpeechMarker = "[NO SPEECH]"

const transcriptPrompt = `IMPORTANT: Do NOT start with phrases like "Okay", "Here is", etc. Begin directly with the transcript.

Transcribe all speech and meaningful audio in this video.

If there is no speech or audio to transcribe, respond with: [NO SPEECH]

Provide ONLY the transcript, nothing else.`

const flaggingPrompt = `You review social media content for a monitoring service.

Below is one %s from the account @%s, posted %s.

Caption: %s
%s
YOUR TASK: Decide whether this item should be flagged for review.

Flag content that mentions violence, threats, self-harm, illegal activity,
or coded language suggesting any of those. Do NOT flag ordinary personal,
promotional or humorous content.

Respond with JSON only, in this exact shape:
{"flagged": true or false, "reason": "one sentence, empty when not flagged"}`

// FlagResult is the verdict for one content item
type FlagResult struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// Analyzer is a Gemini generateContent client
type Analyzer struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
	logger logger.Logger
}

// New creates a Gemini analyzer from config
func New(cfg config.GeminiConfig, log logger.Logger) *Analyzer {
	if log == nil {
		log = logger.GetLogger()
	}
	apiURL := strings.TrimRight(cfg.BaseURL, "/")
	if apiURL == "" {
		apiURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Analyzer{
		client: &http.Client{Timeout: timeout},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  cfg.Model,
		logger: log,
	}
}

// Transcribe uploads the video at path inline and returns its speech
// transcript. Returns "" when the video has no speech.
func (a *Analyzer) Transcribe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeAnalysis, err, "failed to read video for transcription")
	}

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: transcriptPrompt},
				{InlineData: &geminiBlob{
					MimeType: "video/mp4",
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}

	text, err := a.generate(ctx, req)
	if err != nil {
		return "", err
	}

	transcript := strings.TrimSpace(text)
	if transcript == noSpeechMarker {
		return "", nil
	}
	return transcript, nil
}

// Flag judges one item from its caption and transcript
func (a *Analyzer) Flag(ctx context.Context, item models.ContentItem, transcript string) (*FlagResult, error) {
	caption := item.Caption
	if caption == "" {
		caption = "(no caption)"
	}

	transcriptLine := ""
	if transcript != "" {
		transcriptLine = fmt.Sprintf("Video transcript: %s\n", transcript)
	}

	prompt := fmt.Sprintf(flaggingPrompt,
		string(item.Kind),
		item.Username,
		item.Timestamp.Format("2006-01-02"),
		caption,
		transcriptLine,
	)

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMIMEType: "application/json",
		},
	}

	text, err := a.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	var result FlagResult
	if err := parseJSONResponse(text, &result); err != nil {
		a.logger.WarnWithFields("unparsable flagging response", map[string]interface{}{
			"item":     item.ID,
			"response": preview(text),
		})
		return nil, errors.Wrap(errors.ErrorTypeAnalysis, err, "failed to parse flagging response")
	}

	return &result, nil
}

// generate performs one generateContent call and returns the first
// candidate's text
func (a *Analyzer) generate(ctx context.Context, body geminiRequest) (string, error) {
	if a.model == "" {
		return "", errors.New(errors.ErrorTypeAnalysis, "gemini model is required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeAnalysis, err, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.apiURL, a.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeAnalysis, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(errors.ErrorTypeNetwork, err, "gemini request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read gemini response")
	}

	a.logger.DebugWithFields("gemini call completed", map[string]interface{}{
		"model":    a.model,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errors.New(errors.ErrorTypeRateLimit, "gemini rate limit exceeded").WithCode(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrorTypeAnalysis, "gemini returned status %d: %s",
			resp.StatusCode, preview(string(respBody))).WithCode(resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse gemini response")
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New(errors.ErrorTypeAnalysis, "gemini response has no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

var (
	fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	braceRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// parseJSONResponse parses JSON out of a model response, recovering from
// markdown fences and surrounding prose
func parseJSONResponse(text string, target interface{}) error {
	if err := json.Unmarshal([]byte(text), target); err == nil {
		return nil
	}

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), target); err == nil {
			return nil
		}
	}

	if m := braceRe.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), target); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no JSON object found in response")
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generation_config,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
