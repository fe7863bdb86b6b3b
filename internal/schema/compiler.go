package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldError is one failed constraint, located by JSON pointer.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationErrors is returned by Validate when the document does not match.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

const defaultTTL = time.Hour

type Compiler struct {
	mu       sync.Mutex
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
	named    map[string]*js.Schema
}

// NewCompilerWithCache creates a new compiler whose ad-hoc schemas are kept in
// an LRU of maxSize entries for ttl.
func NewCompilerWithCache(maxSize int, ttl time.Duration) *Compiler {
	c := js.NewCompiler()
	c.Draft = js.Draft2020
	c.AssertFormat = true

	return &Compiler{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, ttl),
		named:    make(map[string]*js.Schema),
	}
}

func (c *Compiler) compile(resourceURL string, raw []byte) (*js.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := c.compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Register compiles a schema and keeps it under name for the lifetime of the
// compiler.
func (c *Compiler) Register(name string, raw []byte) error {
	compiled, err := c.compile("mem://forms/"+name+".json", raw)
	if err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}
	c.mu.Lock()
	c.named[name] = compiled
	c.mu.Unlock()
	return nil
}

// Prepare compiles and caches an ad-hoc schema, returning its cache key.
func (c *Compiler) Prepare(ctx context.Context, schema map[string]interface{}) (string, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	sum := sha256.Sum256(schemaBytes)
	key := hex.EncodeToString(sum[:])
	if _, ok := c.cache.Get(key); ok {
		return key, nil
	}

	compiled, err := c.compile("mem://schema/"+key[:16]+".json", schemaBytes)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, compiled)
	return key, nil
}

func (c *Compiler) lookup(name string) (*js.Schema, bool) {
	c.mu.Lock()
	compiled, ok := c.named[name]
	c.mu.Unlock()
	if ok {
		return compiled, true
	}
	return c.cache.Get(name)
}

// Validate checks value against a registered schema name or a key returned by
// Prepare. A mismatch is reported as ValidationErrors.
func (c *Compiler) Validate(ctx context.Context, name string, value interface{}) error {
	compiled, ok := c.lookup(name)
	if !ok {
		return fmt.Errorf("schema %q not registered", name)
	}

	// Round-trip through JSON so structs validate like wire documents
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var valueRaw interface{}
	if err := json.Unmarshal(valueBytes, &valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	err = compiled.Validate(valueRaw)
	if err == nil {
		return nil
	}
	var verr *js.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("validation failed: %w", err)
	}
	return flatten(verr)
}

func flatten(verr *js.ValidationError) ValidationErrors {
	var out ValidationErrors
	var walk func(e *js.ValidationError)
	walk = func(e *js.ValidationError) {
		if len(e.Causes) == 0 {
			field := e.InstanceLocation
			if field == "" {
				field = "/"
			}
			out = append(out, FieldError{Field: field, Reason: e.Message})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
