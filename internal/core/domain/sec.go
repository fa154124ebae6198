package domain

import (
	"fmt"
	"strings"
)

// ImportRequest asks the backend to fetch the latest 10-K for a ticker
type ImportRequest struct {
	Ticker string `json:"ticker"`
}

// ImportAck is the backend acknowledgement of an import submission
type ImportAck struct {
	Message string `json:"message"`
}

// ImportResult describes a completed import
type ImportResult struct {
	Ticker    string     `json:"ticker"`
	Attempts  int        `json:"attempts"`
	Message   string     `json:"message,omitempty"`
	Documents []Document `json:"documents"`
}

// NormalizeTicker trims and upper-cases a ticker symbol
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", fmt.Errorf("%w: ticker is required", ErrInvalidInput)
	}
	return ticker, nil
}
