package schema

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

// AdoptionRequestForm validates the adopter supplied part of a request.
const AdoptionRequestForm = "adoption_request"

//go:embed forms/*.json
var forms embed.FS

// NewFormCompiler returns a compiler with every embedded form registered.
func NewFormCompiler(cacheSize int) (*Compiler, error) {
	c := NewCompilerWithCache(cacheSize, defaultTTL)
	entries, err := forms.ReadDir("forms")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		raw, err := forms.ReadFile(path.Join("forms", entry.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if err := c.Register(name, raw); err != nil {
			return nil, fmt.Errorf("failed to register form: %w", err)
		}
	}
	return c, nil
}
