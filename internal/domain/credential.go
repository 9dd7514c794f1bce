package domain

import (
	"fmt"
	"strings"
	"time"
)

// Credential is an upstream API key used to call the generation provider.
type Credential struct {
	ID         string
	Label      string
	Key        string
	Healthy    bool
	LastError  string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// String never prints key material.
func (c Credential) String() string {
	return fmt.Sprintf("credential(%s %s)", c.ID, KeyFingerprint(c.Key))
}

// KeyFingerprint describes a key by presence, length and format only.
func KeyFingerprint(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "absent"
	}
	format := "opaque"
	switch {
	case strings.Count(key, ":") == 1:
		format = "id:secret"
	case strings.HasPrefix(key, "sk-"):
		format = "sk"
	case len(key) == 36 && strings.Count(key, "-") == 4:
		format = "uuid"
	}
	return fmt.Sprintf("len=%d format=%s", len(key), format)
}
