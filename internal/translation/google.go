package translation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// DefaultEndpoint is the mobile translation page. Requests are plain
// GETs, which is where the chunk byte ceiling comes from: the whole
// request body rides in the URL.
const DefaultEndpoint = "https://translate.google.com/m"

// resultSelector marks the element of the returned page that carries
// the translated text.
const resultSelector = ".result-container"

// GoogleWebProvider translates by fetching the public translation web
// page and scraping the result element out of the returned markup.
type GoogleWebProvider struct {
	endpoint  string
	client    *http.Client
	userAgent string
	logger    *logrus.Logger
}

func NewGoogleWebProvider(endpoint string, timeout time.Duration, logger *logrus.Logger) *GoogleWebProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &GoogleWebProvider{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		logger:    logger,
	}
}

func (g *GoogleWebProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("sl", sourceLang)
	params.Set("tl", targetLang)
	params.Set("q", text)
	requestURL := g.endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build translation request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation endpoint returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse translation response: %w", err)
	}

	result := doc.Find(resultSelector).First()
	if result.Length() == 0 {
		return "", fmt.Errorf("translation result element not found in response")
	}

	g.logger.Debugf("Translated %d bytes %s->%s in %s", len(text), sourceLang, targetLang, time.Since(start))
	return strings.TrimSpace(result.Text()), nil
}
