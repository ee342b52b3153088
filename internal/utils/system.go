package utils

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9\-_.]`)
	repeatedHyphens = regexp.MustCompile(`-+`)
)

// GetUsername returns the current username.
func GetUsername() (string, error) {
	user, err := user.Current()
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetHostname returns the system hostname.
func GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return hostname, nil
}

// DefaultIdentity returns "user@host" for vaults provisioned without an
// explicit identity.
func DefaultIdentity() string {
	username, err := GetUsername()
	if err != nil || username == "" {
		username = "user"
	}
	hostname, err := GetHostname()
	if err != nil || hostname == "" {
		return SanitizeName(username)
	}
	return SanitizeName(username) + "@" + SanitizeName(hostname)
}

// SanitizeName lowercases name, turns spaces into hyphens and drops anything
// that is not alphanumeric, a dot, a hyphen or an underscore.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")

	if name == "" {
		name = "unnamed"
	}
	return name
}
