package translation

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage guesses the language of a text sample and returns its
// ISO 639-1 code. Detection runs locally; no provider round-trip.
func DetectLanguage(sample string) (string, error) {
	sample = strings.TrimSpace(sample)
	if len(sample) < 50 {
		return "", fmt.Errorf("sample too short for language detection (%d bytes)", len(sample))
	}

	info := whatlanggo.Detect(sample)
	if info.Lang == -1 {
		return "", fmt.Errorf("language detection failed")
	}

	// whatlanggo reports ISO 639-3; canonicalize to the two-letter
	// form the translation endpoints expect.
	tag, err := language.Parse(whatlanggo.LangToString(info.Lang))
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q: %w", whatlanggo.LangToString(info.Lang), err)
	}

	base, _ := tag.Base()
	return base.String(), nil
}

// ValidateLanguageCode rejects codes the translation endpoints cannot
// take, before any chapter work starts.
func ValidateLanguageCode(code string) error {
	if code == "" {
		return fmt.Errorf("language code is empty")
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return nil
}
