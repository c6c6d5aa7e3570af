package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy    = bluemonday.StrictPolicy()
	basenameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}(\.[a-z0-9-]+)*$`)
	handleRegex   = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)
)

// SanitizeString removes potentially dangerous characters
func SanitizeString(input string) string {
	// Trim whitespace
	input = strings.TrimSpace(input)

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Limit length
	if len(input) > 1000 {
		input = input[:1000]
	}

	return input
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeBasename normalizes a basename before validation: lowercased,
// stripped of markup and surrounding whitespace.
func SanitizeBasename(input string) string {
	return strings.ToLower(SanitizeHTML(SanitizeString(input)))
}

// ValidateBasename checks if a basename is a plausible name label
// (optionally dotted, like name.base.eth)
func ValidateBasename(basename string) bool {
	return basenameRegex.MatchString(basename)
}

// SanitizeHandle normalizes a social handle: markup stripped, a single
// leading @ kept.
func SanitizeHandle(input string) string {
	input = SanitizeHTML(SanitizeString(input))
	return strings.TrimPrefix(input, "@")
}

// ValidateHandle checks if a social handle looks valid
func ValidateHandle(handle string) bool {
	return handleRegex.MatchString(handle)
}

// ValidateFileType checks if file extension is allowed
func ValidateFileType(filename string, allowedTypes []string) bool {
	filename = strings.ToLower(filename)
	for _, ext := range allowedTypes {
		if strings.HasSuffix(filename, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// ValidateFileSize checks if file size is within limit
func ValidateFileSize(size int64, maxSize int64) bool {
	return size > 0 && size <= maxSize
}
