// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"strings"
	"time"

	"example.com/steps/internal/domain"
)

// EncodeCursor serialises the history cursor to a string token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(c.Day.Format(domain.DayFormat)))
}

// DecodeCursor parses the encoded cursor token.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	day, err := time.Parse(domain.DayFormat, string(decoded))
	if err != nil {
		return nil, err
	}
	return &domain.Cursor{Day: day}, nil
}
