// Package scan matches extracted text against trigger vocabularies and
// turns matches into a bounded risk score with forensic alerts.
package scan

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// Normalize transliterates to plain ASCII lowercase and strips everything
// but alphanumerics and whitespace. The same function is applied to trigger
// terms and to document text, making matching case- and diacritic-insensitive.
func Normalize(s string) string {
	clean := strings.ToLower(unidecode.Unidecode(s))
	return nonAlnum.ReplaceAllString(clean, "")
}
