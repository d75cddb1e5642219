package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply carries no JSON object.
var ErrNoJSON = errors.New("no JSON object in reply")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// CleanJSONBlock strips a markdown code fence around a reply, if present.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ExtractJSONObject returns the span between the first '{' and the last '}'.
func ExtractJSONObject(text string) (string, error) {
	text = CleanJSONBlock(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// DecodeJSONReply extracts the JSON object from a model reply and decodes it into v.
func DecodeJSONReply(text string, v any) error {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}
