package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// Limits applied to paste input
const (
	MinURLLength         = 2
	MaxURLLength         = 250
	MaxContentLength     = 200_000
	MaxPasswordLength    = 72 // bcrypt ignores anything longer
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxLinkLength        = 2048
)

// ErrInvalidValue marks input that failed validation
var ErrInvalidValue = errors.New("invalid value")

// reservedURLs collide with fixed API routes
var reservedURLs = map[string]bool{
	"new":    true,
	"clone":  true,
	"pastes": true,
}

var (
	urlPattern   = regexp.MustCompile(`^[\w\-\.!]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}

// NormalizeURL turns a requested custom paste URL into its stored form.
// Unicode is converted to punycode so the result is always plain ASCII.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", invalid("url must not be empty")
	}

	ascii, err := idna.Punycode.ToASCII(s)
	if err != nil {
		return "", invalid("url %q cannot be encoded: %v", s, err)
	}

	if len(ascii) < MinURLLength || len(ascii) > MaxURLLength {
		return "", invalid("url must be between %d and %d characters", MinURLLength, MaxURLLength)
	}
	if !urlPattern.MatchString(ascii) {
		return "", invalid("url may only contain letters, digits, '_', '-', '.' and '!'")
	}
	if reservedURLs[strings.ToLower(ascii)] {
		return "", invalid("url %q is reserved", ascii)
	}
	return ascii, nil
}

// IsValidURL reports whether s is already in normalised URL form
func IsValidURL(s string) bool {
	n, err := NormalizeURL(s)
	return err == nil && n == s
}

// ValidateContent checks the size bounds of paste content
func ValidateContent(content string) error {
	if len(content) < 1 {
		return invalid("content must not be empty")
	}
	if len(content) > MaxContentLength {
		return invalid("content exceeds %d bytes", MaxContentLength)
	}
	return nil
}

// ValidatePassword checks a plain password before hashing
func ValidatePassword(password string) error {
	if len(password) > MaxPasswordLength {
		return invalid("password exceeds %d bytes", MaxPasswordLength)
	}
	return nil
}

// NormalizeLink validates an embedded http(s) link such as a favicon and
// returns it with the host in its ASCII (punycode) form.
func NormalizeLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > MaxLinkLength {
		return "", invalid("link exceeds %d characters", MaxLinkLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", invalid("link %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid("link %q must use http or https", raw)
	}

	host := u.Hostname()
	if host == "" {
		return "", invalid("link %q has no host", raw)
	}

	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", invalid("link host %q: %v", host, err)
		}
		host = ascii
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	return u.String(), nil
}

// ValidateColor accepts an empty value or a #rrggbb colour
func ValidateColor(color string) error {
	if color == "" || colorPattern.MatchString(color) {
		return nil
	}
	return invalid("embed color %q must look like #rrggbb", color)
}

// ValidateMetadataText checks title and description lengths
func ValidateMetadataText(title, description string) error {
	if len(title) > MaxTitleLength {
		return invalid("title exceeds %d characters", MaxTitleLength)
	}
	if len(description) > MaxDescriptionLength {
		return invalid("description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}
