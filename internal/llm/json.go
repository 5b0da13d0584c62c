package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
)

var (
	fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")
	errEmpty    = errors.New("empty response")
)

// ExtractJSON returns the contents of the first fenced code block in text if
// there is one, otherwise the trimmed text.
func ExtractJSON(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// DecodeJSON extracts and unmarshals a provider response into out. Failures
// match common.ErrParse.
func DecodeJSON(text string, out any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return common.ParseError("provider response", errEmpty)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return common.ParseError("provider response", err)
	}
	return nil
}
