package models

import (
	"regexp"
	"strings"
)

// ProfileRegistry resolves layered model defaults for a provider/model pair.
type ProfileRegistry struct {
	layers []profileLayer
}

type profileLayer struct {
	profile ModelProfile
	pattern *regexp.Regexp // nil: applies to every model of the provider
	invalid bool
}

// NewRegistry builds a registry from profiles, applied in order. A profile
// whose ModelPattern does not compile never matches.
func NewRegistry(profiles ...ModelProfile) *ProfileRegistry {
	r := &ProfileRegistry{layers: make([]profileLayer, 0, len(profiles))}
	for _, p := range profiles {
		layer := profileLayer{profile: p}
		if p.ModelPattern != "" {
			re, err := regexp.Compile(p.ModelPattern)
			if err != nil {
				layer.invalid = true
			}
			layer.pattern = re
		}
		r.layers = append(r.layers, layer)
	}
	return r
}

// NewDefaultRegistry returns a registry of the built-in profiles.
func NewDefaultRegistry() *ProfileRegistry {
	return NewRegistry(builtinProfiles()...)
}

// Resolve merges every matching layer: defaults, then provider-wide, then
// model-specific.
func (r *ProfileRegistry) Resolve(provider, model string) ResolvedProfile {
	var merged ModelProfile
	for _, l := range r.layers {
		if l.matches(provider, model) {
			merged = mergeProfiles(merged, l.profile)
		}
	}
	return toResolved(merged)
}

// Apply fills the fields cfg leaves unset. The model is resolved first so
// model-specific layers see it.
func (r *ProfileRegistry) Apply(cfg ModelConfig) ModelConfig {
	if cfg.Model == "" {
		cfg.Model = r.Resolve(cfg.Provider, "").DefaultModel
	}
	p := r.Resolve(cfg.Provider, cfg.Model)
	if cfg.MaxTokens <= 0 && p.MaxTokens != nil {
		cfg.MaxTokens = *p.MaxTokens
	}
	if cfg.Temperature == nil && p.Temperature != nil {
		t := *p.Temperature
		cfg.Temperature = &t
	}
	return cfg
}

func (l profileLayer) matches(provider, model string) bool {
	if l.invalid {
		return false
	}
	if l.profile.Provider != "" && !strings.EqualFold(l.profile.Provider, provider) {
		return false
	}
	return l.pattern == nil || l.pattern.MatchString(model)
}
