package upload

import "regexp"

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script\b`),
	regexp.MustCompile(`(?i)\bon\w+\s*=\s*["']?`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`),
	regexp.MustCompile(`(?i)style\s*=\s*["'][^"']*expression\s*\(`),
}

// LooksLikeScript is a default content safety check, reporting field values that
// appear to carry markup capable of running scripts in a browser.
func LooksLikeScript(value string) bool {
	for _, pattern := range scriptPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}

	return false
}
