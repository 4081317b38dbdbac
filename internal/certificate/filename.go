package certificate

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	separators    = strings.NewReplacer("/", "-", "\\", "-")
)

// Filename derives the export name from the quiz subject, e.g.
// "Basic  Arithmetic" -> "quiz-certificate-basic-arithmetic.pdf".
func Filename(subject string) string {
	slug := strings.ToLower(strings.TrimSpace(subject))
	slug = whitespaceRun.ReplaceAllString(slug, "-")
	slug = separators.Replace(slug)
	slug = strings.TrimLeft(slug, ".")
	if slug == "" {
		slug = "quiz"
	}
	return "quiz-certificate-" + slug + ".pdf"
}
