// Package identity turns the attribute maps returned by external identity
// providers into a single user representation.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderGoogle, ProviderGitHub}

// ParseProvider matches name against the supported providers, ignoring case.
func ParseProvider(name string) (Provider, error) {
	const op = "identity.ParseProvider"

	switch p := Provider(strings.ToLower(name)); p {
	case ProviderGoogle, ProviderGitHub:
		return p, nil
	default:
		return "", fmt.Errorf("%s: %q: %w", op, name, ErrUnsupportedProvider)
	}
}

type UserInfo struct {
	Provider Provider `json:"provider"`
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// Normalize maps provider specific attributes onto UserInfo. Missing
// attributes are left empty.
func Normalize(provider string, attrs map[string]any) (*UserInfo, error) {
	const op = "identity.Normalize"

	p, err := ParseProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch p {
	case ProviderGoogle:
		return &UserInfo{
			Provider: p,
			ID:       stringAttr(attrs, "sub"),
			Email:    stringAttr(attrs, "email"),
			Name:     stringAttr(attrs, "name"),
			ImageURL: stringAttr(attrs, "picture"),
		}, nil
	default:
		name := stringAttr(attrs, "name")
		if name == "" {
			name = stringAttr(attrs, "login")
		}

		return &UserInfo{
			Provider: p,
			ID:       stringAttr(attrs, "id"),
			Email:    stringAttr(attrs, "email"),
			Name:     name,
			ImageURL: stringAttr(attrs, "avatar_url"),
		}, nil
	}
}

// stringAttr reads attrs[key] as a string. Numeric ids decoded from JSON
// arrive as float64 and are rendered without exponent.
func stringAttr(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
