package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gammadia/compound/namegen"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func sanitize(s string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(s, "-"), "-.")
}

// NodeName builds a unique sub-node name from a prefix and the label it was
// provisioned for, e.g. "compound-postgres-16-quiet-tiger".
func NodeName(prefix, label string) string {
	id := sanitize(namegen.Get().String())
	if label = sanitize(label); label == "" {
		return fmt.Sprintf("%s-%s", prefix, id)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, label, id)
}
