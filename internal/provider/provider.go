// Package provider loads the static identity provider profiles.
package provider

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/andyleap/ndirp/internal/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var defaultProfiles []byte

// Endpoints is one discovery-free endpoint set and the client registered on it.
type Endpoints struct {
	Issuer                string `yaml:"issuer" validate:"required,url"`
	AuthorizationEndpoint string `yaml:"authorization_endpoint" validate:"required,url"`
	TokenEndpoint         string `yaml:"token_endpoint" validate:"required,url"`
	ClientID              string `yaml:"client_id" validate:"required"`
}

// Profile describes one identity provider.
type Profile struct {
	Name string              `yaml:"-"`
	Mode models.ProviderMode `yaml:"mode" validate:"required,oneof=myinfo singpass"`

	Endpoints Endpoints `yaml:"endpoints"`
	// EndpointsWithoutPKCE is used instead of Endpoints when PKCE is switched off.
	EndpointsWithoutPKCE *Endpoints `yaml:"endpoints_without_pkce,omitempty"`

	AttributeScope string `yaml:"attribute_scope,omitempty"`
	PurposeID      string `yaml:"purpose_id,omitempty"`
	Purpose        string `yaml:"purpose,omitempty"`
	Attributes     string `yaml:"attributes,omitempty"`
}

// EndpointsFor returns the endpoint set that applies to the PKCE switch.
func (p *Profile) EndpointsFor(pkceEnabled bool) Endpoints {
	if !pkceEnabled && p.EndpointsWithoutPKCE != nil {
		return *p.EndpointsWithoutPKCE
	}
	return p.Endpoints
}

type file struct {
	Providers map[string]*Profile `yaml:"providers" validate:"required,min=1,dive"`
}

// Registry holds the loaded profiles by name.
type Registry struct {
	profiles map[string]*Profile
}

// Default returns the built-in staging profiles.
func Default() (*Registry, error) {
	return Parse(defaultProfiles)
}

// Load reads profiles from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file '%s': %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("providers file '%s': %w", path, err)
	}
	return reg, nil
}

// Parse decodes and validates a providers document.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal providers: %v", models.ErrConfiguration, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("%w: invalid providers: %v", models.ErrConfiguration, err)
	}

	for name, p := range f.Providers {
		p.Name = name
	}

	return &Registry{profiles: f.Providers}, nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names lists the profile names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
