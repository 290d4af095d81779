package translation

import "context"

// Provider is the translation capability. Implementations are slow and
// fallible; callers treat a failure as a hard failure for the chunk it
// belongs to and never retry at the chunk level.
type Provider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
