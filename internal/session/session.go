// Package session parses presentation codes and weblinks into the
// credentials a player needs to join a presentation.
package session

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidCode is returned when input does not contain a usable
// presentation code.
var ErrInvalidCode = errors.New("invalid presentation code")

var (
	codePattern    = regexp.MustCompile(`^[A-Za-z0-9]{4}-\d{4}$`)
	compactPattern = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)
	nonAlnum       = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// Credentials identify a presentation.
type Credentials struct {
	Code      string `yaml:"session_id" json:"sessionId"`
	AccessKey string `yaml:"passcode,omitempty" json:"passcode,omitempty"`
}

// Validate reports whether the credentials carry a well-formed code.
func (c Credentials) Validate() error {
	if !IsValidCode(c.Code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, c.Code)
	}
	return nil
}

// IsValidCode reports whether code has the XXXX-0000 shape.
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// FormatCode normalizes user input. Eight alphanumeric characters with any
// separators get a dash inserted after the fourth; anything else is
// returned unchanged.
func FormatCode(input string) string {
	if IsValidCode(input) {
		return input
	}
	cleaned := nonAlnum.ReplaceAllString(input, "")
	if len(cleaned) == 8 {
		return cleaned[:4] + "-" + cleaned[4:]
	}
	return input
}

// ParseWeblink extracts credentials from a presentation link such as
// https://attend.example.com/ABCD-1234?key=secret. The first path segment
// that looks like a code wins; the key query parameter is the access key.
func ParseWeblink(link string) (Credentials, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return Credentials{}, fmt.Errorf("parse weblink: %w", err)
	}

	var creds Credentials
	for _, segment := range strings.Split(u.Path, "/") {
		if IsValidCode(segment) {
			creds.Code = segment
			break
		}
		if compactPattern.MatchString(segment) {
			if formatted := segment[:4] + "-" + segment[4:]; IsValidCode(formatted) {
				creds.Code = formatted
				break
			}
		}
	}
	if creds.Code == "" {
		return Credentials{}, fmt.Errorf("%w: no code in %q", ErrInvalidCode, link)
	}

	creds.AccessKey = u.Query().Get("key")
	return creds, nil
}

// Parse accepts either a weblink or a bare code. An explicit accessKey
// overrides one found in a weblink.
func Parse(input, accessKey string) (Credentials, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "/") || strings.Contains(input, "?") {
		creds, err := ParseWeblink(input)
		if err != nil {
			return Credentials{}, err
		}
		if accessKey != "" {
			creds.AccessKey = accessKey
		}
		return creds, nil
	}

	creds := Credentials{Code: FormatCode(input), AccessKey: accessKey}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
