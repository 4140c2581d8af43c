package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// MeetingCodeRegex accepts generated codes as well as free-form room names
	// that older clients join by.
	MeetingCodeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// RecordingIDRegex validates client supplied recording ids
	RecordingIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateMeetingCode validates a meeting code
func ValidateMeetingCode(code string) error {
	if code == "" {
		return fmt.Errorf("meeting code is required")
	}
	if len(code) > 64 {
		return fmt.Errorf("meeting code is too long (max 64 characters)")
	}
	if !MeetingCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid meeting code format")
	}
	return nil
}

// ValidateRecordingID validates a recording id
func ValidateRecordingID(id string) error {
	if id == "" {
		return fmt.Errorf("recording ID is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("recording ID is too long (max 128 characters)")
	}
	if !RecordingIDRegex.MatchString(id) {
		return fmt.Errorf("invalid recording ID format")
	}
	return nil
}

// ValidateMeetingTitle validates meeting title. Empty titles are allowed and
// replaced by the default title.
func ValidateMeetingTitle(title string) error {
	if !utf8.ValidString(title) {
		return fmt.Errorf("meeting title contains invalid characters")
	}
	return ValidateStringLength(strings.TrimSpace(title), 0, 200, "meeting title")
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateICEServerURL validates a STUN/TURN url
func ValidateICEServerURL(urlStr string) error {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(urlStr, scheme) && len(urlStr) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("invalid ICE server URL %q (must start with stun:, stuns:, turn: or turns:)", urlStr)
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
