package translation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIProvider is the alternative translation backend for
// deployments with an API key. Unlike the web provider it retries
// transient failures internally; callers still see a single
// success-or-error per request.
type OpenAIProvider struct {
	client      *openai.Client
	logger      *logrus.Logger
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
}

func NewOpenAIProvider(apiKey, model string, maxTokens int, temperature float32, maxRetries int, retryDelay time.Duration, logger *logrus.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		logger:      logger,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
	}
}

func (c *OpenAIProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(`Translate the following text from %s to %s. The text contains paragraphs separated by blank lines; keep the same number of paragraphs and the same blank-line separators in your answer. Return only the translated text without any additional comments.

Text: %s`, languageName(sourceLang), languageName(targetLang), text)

	response, err := c.makeRequest(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to translate text: %w", err)
	}

	return strings.TrimSpace(response), nil
}

func (c *OpenAIProvider) makeRequest(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debugf("Retrying OpenAI request (attempt %d/%d)", attempt+1, c.maxRetries+1)
			time.Sleep(c.retryDelay)
		}

		resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})

		if err != nil {
			lastErr = err
			c.logger.Warnf("OpenAI request failed (attempt %d): %v", attempt+1, err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices returned")
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("max retries exceeded, last error: %w", lastErr)
}

func languageName(code string) string {
	languages := map[string]string{
		"en": "English",
		"es": "Spanish",
		"fr": "French",
		"de": "German",
		"it": "Italian",
		"pt": "Portuguese",
		"ru": "Russian",
		"ja": "Japanese",
		"ko": "Korean",
		"zh": "Chinese",
		"ar": "Arabic",
		"fa": "Persian",
		"he": "Hebrew",
		"hi": "Hindi",
		"tr": "Turkish",
		"pl": "Polish",
		"nl": "Dutch",
		"sv": "Swedish",
		"da": "Danish",
		"no": "Norwegian",
		"fi": "Finnish",
		"cs": "Czech",
		"el": "Greek",
		"th": "Thai",
		"vi": "Vietnamese",
		"id": "Indonesian",
		"uk": "Ukrainian",
	}

	if name, exists := languages[code]; exists {
		return name
	}

	return code
}
