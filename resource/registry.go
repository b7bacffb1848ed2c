package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownResource is returned for URIs no resource template matches.
var ErrUnknownResource = errors.New("resource: unknown uri")

// Resource describes a readable resource or resource template.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	Template    bool   `json:"template,omitempty"`
}

// Content is the body of a read resource.
type Content struct {
	URI      string `json:"uri"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text"`
}

const (
	mimeJSON = "application/json"
	mimeText = "text/plain"

	helloURI  = "hello://world"
	helloText = "Hello from PokemonMCPServer!"
)

// Registry resolves resource URIs against the provider.
type Registry struct {
	provider *Provider
}

// NewRegistry creates a resource registry over p.
func NewRegistry(p *Provider) *Registry {
	return &Registry{provider: p}
}

var templates = []Resource{
	{
		URI:         "pokemon://{name}",
		Name:        "pokemon",
		Description: "Detailed information for a pokemon: base stats, types, abilities, moves and evolution chain.",
		MimeType:    mimeJSON,
		Template:    true,
	},
	{
		URI:         "directpokemon://{name}",
		Name:        "directpokemon",
		Description: "Plain-text echo resource for connectivity checks.",
		MimeType:    mimeText,
		Template:    true,
	},
	{
		URI:         helloURI,
		Name:        "hello",
		Description: "A simple Hello World resource.",
		MimeType:    mimeText,
	},
}

// List returns the templates followed by a concrete pokemon:// entry for
// every pokemon already fetched.
func (r *Registry) List(ctx context.Context) []Resource {
	out := append([]Resource(nil), templates...)
	for _, name := range r.provider.Seen(ctx) {
		out = append(out, Resource{
			URI:      "pokemon://" + name,
			Name:     name,
			MimeType: mimeJSON,
		})
	}
	return out
}

// Read resolves uri. Pokemon lookups propagate ErrNotFound from upstream.
func (r *Registry) Read(ctx context.Context, uri string) (*Content, error) {
	if uri == helloURI {
		return &Content{URI: uri, MimeType: mimeText, Text: helloText}, nil
	}
	scheme, name, ok := strings.Cut(uri, "://")
	if !ok || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, uri)
	}
	switch scheme {
	case "pokemon":
		rec, err := r.provider.Pokemon(ctx, name)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		return &Content{URI: "pokemon://" + rec.Name, MimeType: mimeJSON, Text: string(raw)}, nil
	case "directpokemon":
		return &Content{
			URI:      uri,
			MimeType: mimeText,
			Text:     fmt.Sprintf("Direct Pokemon resource for %s!", name),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownResource, uri)
}
