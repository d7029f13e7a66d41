// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength    = 6
	MaxPasswordLength    = 128
	MaxDisplayNameLength = 30
	MaxEmailLength       = 254
	BlobPrefixLength     = 16
	MaxPostTextLength    = 2000
	MaxCommentTextLength = 1000
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	blobPath   = regexp.MustCompile(`^(avatars|images)/([A-Za-z0-9]{16})_(.+)$`)
)

// ValidatePassword enforces the auth service's length rule. Composition is not checked.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}
	return nil
}

// ValidateDisplayName checks the name shown on posts and comments. Any script is
// allowed; control characters and surrounding whitespace are not.
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("display name is required")
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("display name cannot start or end with whitespace")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return fmt.Errorf("display name must not exceed %d characters", MaxDisplayNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("display name cannot contain control characters")
		}
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}

	return nil
}

// ValidateBlobPath checks a storage path of the form <folder>/<16 alnum>_<filename>
// and returns the folder.
func ValidateBlobPath(path string) (string, error) {
	m := blobPath.FindStringSubmatch(path)
	if m == nil {
		return "", fmt.Errorf("path must look like avatars/<16 letters or digits>_<filename> or images/...")
	}
	filename := m[3]
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("filename cannot contain path separators or '..'")
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("filename cannot contain control characters")
		}
	}
	return m[1], nil
}

// ValidateText bounds free text such as captions and comments.
func ValidateText(field, text string, maxRunes int, required bool) error {
	if required && strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(text) > maxRunes {
		return fmt.Errorf("%s must not exceed %d characters", field, maxRunes)
	}
	return nil
}
