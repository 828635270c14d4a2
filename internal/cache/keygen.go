package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyGenerator derives cache keys from dispatch parameters with SHA-256.
// Two requests share a key only when model, prompt, temperature and token
// ceiling all match.
type KeyGenerator struct {
	Prefix string
}

// NewKeyGenerator creates a generator with an optional key prefix.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{Prefix: prefix}
}

// Generate returns the cache key for one model request.
func (g *KeyGenerator) Generate(model, prompt string, temperature float64, maxTokens int) string {
	payload := fmt.Sprintf("model:%s|prompt:%s|temp:%.2f|max_tokens:%d",
		model, prompt, temperature, maxTokens)

	sum := sha256.Sum256([]byte(payload))
	key := hex.EncodeToString(sum[:])

	if g.Prefix != "" {
		return g.Prefix + ":" + key
	}
	return key
}
