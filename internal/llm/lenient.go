package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reFenceOpen  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	reFenceClose = regexp.MustCompile("\\s*```$")
)

// CleanJSON extracts a JSON object from model output that may be wrapped in
// markdown fences or surrounded by prose. It returns the raw object bytes or
// an error when no well-formed object can be recovered.
func CleanJSON(text string) ([]byte, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = reFenceOpen.ReplaceAllString(cleaned, "")
	cleaned = reFenceClose.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if json.Valid([]byte(cleaned)) {
		return []byte(cleaned), nil
	}

	// Tolerate leading/trailing commentary around the object.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		candidate := cleaned[start : end+1]
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}
	return nil, fmt.Errorf("no valid JSON object in model output")
}
