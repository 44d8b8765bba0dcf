package video

import (
	"fmt"

	"genlux/internal/providers/genai"
	"genlux/internal/videojob"
)

const (
	KindGemini    = "gemini"
	KindSynthetic = "synthetic"
)

// NewProvider selects the provider named by kind.
func NewProvider(kind string, client *genai.Client) (videojob.Provider, error) {
	switch kind {
	case KindGemini, "":
		if client == nil {
			return nil, fmt.Errorf("video: gemini provider needs a client")
		}
		return NewGeminiProvider(client), nil
	case KindSynthetic:
		return NewSyntheticProvider(1), nil
	default:
		return nil, fmt.Errorf("video: unknown provider %q", kind)
	}
}
