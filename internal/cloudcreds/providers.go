// Package cloudcreds describes the cloud providers a user can store
// credentials for, validates and seals credential input, and verifies stored
// credentials against each provider's API.
package cloudcreds

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Provider identifiers.
const (
	ProviderAWS          = "aws"
	ProviderAzure        = "azure"
	ProviderGCP          = "gcp"
	ProviderDigitalOcean = "digitalocean"
	ProviderHetzner      = "hetzner"
	ProviderLinode       = "linode"
	ProviderVultr        = "vultr"
)

// ErrUnknownProvider is returned for a provider id with no schema.
var ErrUnknownProvider = errors.New("unknown cloud provider")

// FieldError reports a problem with one credential field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Field describes one credential input. Secret fields are encrypted at rest
// and never listed in clear.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Secret   bool   `json:"secret"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// Provider is the field schema for one cloud provider.
type Provider struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field returns the named field.
func (p Provider) Field(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var providers = map[string]Provider{
	ProviderAWS: {
		ID:   ProviderAWS,
		Name: "Amazon Web Services",
		Fields: []Field{
			{Name: "access_key_id", Label: "Access key ID", Required: true},
			{Name: "secret_access_key", Label: "Secret access key", Secret: true, Required: true},
			{Name: "session_token", Label: "Session token", Secret: true},
			{Name: "region", Label: "Default region", Default: "us-east-1"},
		},
	},
	ProviderAzure: {
		ID:   ProviderAzure,
		Name: "Microsoft Azure",
		Fields: []Field{
			{Name: "tenant_id", Label: "Tenant ID", Required: true},
			{Name: "client_id", Label: "Client ID", Required: true},
			{Name: "client_secret", Label: "Client secret", Secret: true, Required: true},
			{Name: "subscription_id", Label: "Subscription ID", Required: true},
		},
	},
	ProviderGCP: {
		ID:   ProviderGCP,
		Name: "Google Cloud",
		Fields: []Field{
			{Name: "project_id", Label: "Project ID", Required: true},
			{Name: "service_account_json", Label: "Service account key (JSON)", Secret: true, Required: true},
		},
	},
	ProviderDigitalOcean: {
		ID:     ProviderDigitalOcean,
		Name:   "DigitalOcean",
		Fields: []Field{{Name: "api_token", Label: "API token", Secret: true, Required: true}},
	},
	ProviderHetzner: {
		ID:     ProviderHetzner,
		Name:   "Hetzner Cloud",
		Fields: []Field{{Name: "api_token", Label: "API token", Secret: true, Required: true}},
	},
	ProviderLinode: {
		ID:     ProviderLinode,
		Name:   "Linode",
		Fields: []Field{{Name: "api_token", Label: "Personal access token", Secret: true, Required: true}},
	},
	ProviderVultr: {
		ID:     ProviderVultr,
		Name:   "Vultr",
		Fields: []Field{{Name: "api_key", Label: "API key", Secret: true, Required: true}},
	},
}

// Providers returns every provider schema ordered by id.
func Providers() []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the schema for id.
func Lookup(id string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// Validate checks values against the schema. Unknown fields are rejected.
// With partial set (updates) missing required fields are allowed because the
// stored values are kept; a field sent as an empty string still fails.
func (p Provider) Validate(values map[string]string, partial bool) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := p.Field(name)
		if !ok {
			return &FieldError{Field: name, Reason: "unknown field for provider " + p.ID}
		}
		if f.Required && strings.TrimSpace(values[name]) == "" {
			return &FieldError{Field: name, Reason: "must not be empty"}
		}
	}
	if partial {
		return nil
	}
	for _, f := range p.Fields {
		if !f.Required {
			continue
		}
		if _, ok := values[f.Name]; !ok {
			return &FieldError{Field: f.Name, Reason: "is required"}
		}
	}
	return nil
}
