// Package provider builds tile URLs for a Thunderforest-style tile server.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// DefaultHost is used when no host is configured.
const DefaultHost = "tile.thunderforest.com"

var (
	ErrUnknownStyle  = errors.New("unknown map style")
	ErrMissingAPIKey = errors.New("api key is required")
)

// Styles lists the style identifiers the provider serves.
var Styles = []string{
	"outdoors",
	"mobile-atlas",
	"cycle",
	"transport",
	"landscape",
	"transport-dark",
	"spinal-map",
	"pioneer",
	"neighbourhood",
	"atlas",
}

func IsValidStyle(style string) bool {
	for _, s := range Styles {
		if s == style {
			return true
		}
	}
	return false
}

type Provider struct {
	host   string
	style  string
	apiKey string
}

// New validates the style and key. An empty host selects DefaultHost; a host
// with a scheme ("http://127.0.0.1:8080") is used as the base URL verbatim.
func New(host, style, apiKey string) (*Provider, error) {
	if !IsValidStyle(style) {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStyle, style, strings.Join(Styles, ", "))
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if host == "" {
		host = DefaultHost
	}
	return &Provider{host: host, style: style, apiKey: apiKey}, nil
}

func (p *Provider) Style() string {
	return p.style
}

// TileURL returns https://{host}/{style}/{z}/{x}/{y}.png?apikey={key}.
func (p *Provider) TileURL(t maptile.Tile) string {
	base := p.host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/%s/%d/%d/%d.png?apikey=%s",
		strings.TrimSuffix(base, "/"), p.style, t.Z, t.X, t.Y, url.QueryEscape(p.apiKey))
}

// Redact hides the api key in s, for logging URLs and errors.
func (p *Provider) Redact(s string) string {
	if p.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(p.apiKey), "[REDACTED]")
	return strings.ReplaceAll(s, p.apiKey, "[REDACTED]")
}
