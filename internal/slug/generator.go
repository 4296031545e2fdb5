package slug

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Symbols used for generated paste URLs (lowercase so links survive retyping)
const defaultSymbols = "abcdefghijklmnopqrstuvwxyz0123456789"

// Symbols used for generated passwords
const secretSymbols = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const (
	secretLength = 24
	maxAttempts  = 1000
)

// Generator produces paste URLs and passwords
type Generator struct {
	symbols string
	length  int
}

// New creates a generator for URLs of the given length
func New(length int) *Generator {
	if length <= 0 {
		length = 10
	}
	return &Generator{
		symbols: defaultSymbols,
		length:  length,
	}
}

// GenerateLength creates a random slug of the given length, falling back to
// the configured length for non-positive values.
func (g *Generator) GenerateLength(length int) (string, error) {
	if length <= 0 {
		length = g.length
	}
	return gonanoid.Generate(g.symbols, length)
}

// Secret returns a random password for pastes created without one
func (g *Generator) Secret() (string, error) {
	return gonanoid.Generate(secretSymbols, secretLength)
}

// GenerateUnique keeps generating slugs until exists reports a free one.
// Every 100 collisions the slug grows by one character.
func (g *Generator) GenerateUnique(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	length := g.length

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := g.GenerateLength(length)
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}

		if attempt > 0 && attempt%100 == 0 {
			length++
		}
	}

	return "", fmt.Errorf("no free slug after %d attempts", maxAttempts)
}
