package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	sample := "From my grandfather Verus I learned good morals and the government of my temper. " +
		"From the reputation and remembrance of my father, modesty and a manly character."

	lang, err := DetectLanguage(sample)
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
}

func TestDetectLanguageRejectsShortSample(t *testing.T) {
	_, err := DetectLanguage("hello")
	assert.Error(t, err)
}

func TestValidateLanguageCode(t *testing.T) {
	assert.NoError(t, ValidateLanguageCode("es"))
	assert.NoError(t, ValidateLanguageCode("pt-BR"))
	assert.Error(t, ValidateLanguageCode(""))
	assert.Error(t, ValidateLanguageCode("not a language"))
}
