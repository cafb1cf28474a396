package oracle

import (
	"regexp"
	"strings"

	"github.com/autotaghq/autotag/internal/autotagerrors"
)

// tagPattern extracts the model's answer from within <tag></tag>. (?s) lets
// the match span newlines since models sometimes wrap the answer.
var tagPattern = regexp.MustCompile(`(?s)<tag>(.*?)</tag>`)

// ExtractTag returns the trimmed contents of the first <tag></tag> pair in raw.
// Returns a MalformedOracleResponseError when no pair is present or it is empty.
func ExtractTag(raw string) (string, error) {
	m := tagPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", autotagerrors.NewMalformedOracleResponseError(raw, "no <tag> element in oracle response")
	}

	tag := strings.TrimSpace(m[1])
	if tag == "" {
		return "", autotagerrors.NewMalformedOracleResponseError(raw, "empty <tag> element in oracle response")
	}

	return tag, nil
}
