package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mroshb/quiz_bot/pkg/utils"
)

const (
	maxTextLen = 1000
	maxNameLen = 64
)

var htmlPolicy = bluemonday.StrictPolicy()

// ImageTypes are the local attachment extensions Telegram accepts as photos.
var ImageTypes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// SanitizeString removes potentially dangerous characters
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return utils.Truncate(input, maxTextLen)
}

// SanitizeHTML removes all HTML tags
func SanitizeHTML(input string) string {
	return htmlPolicy.Sanitize(input)
}

// SanitizeText strips markup from imported question text and returns plain text.
func SanitizeText(input string) string {
	return SanitizeString(html.UnescapeString(SanitizeHTML(input)))
}

// SanitizeName cleans a chat display name for announcements. Empty names fall back to fallback.
func SanitizeName(name, fallback string) string {
	name = strings.Join(strings.Fields(SanitizeText(name)), " ")
	if name == "" {
		return fallback
	}
	return utils.Truncate(name, maxNameLen)
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
