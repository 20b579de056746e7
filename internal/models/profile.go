package models

// ModelProfile defines a layer in the profile resolution chain.
// Nil pointer fields mean "inherit from parent"; non-nil means "override".
//
// Resolution order: default → provider → model (regexp match).
type ModelProfile struct {
	// Provider matches a provider name ("openai", "anthropic").
	// Empty string means this is the default profile.
	Provider string

	// ModelPattern is a regexp that matches model names.
	// Empty string means this profile applies to all models for the provider.
	ModelPattern string

	// DefaultModel is used when the configuration names no model. nil = inherit.
	DefaultModel *string

	// Temperature overrides the default temperature. nil = inherit.
	Temperature *float64

	// MaxTokens overrides the default max tokens. nil = inherit.
	MaxTokens *int
}

// ResolvedProfile is a fully merged profile.
type ResolvedProfile struct {
	DefaultModel string
	Temperature  *float64
	MaxTokens    *int
}

// mergeProfiles merges overlay on top of base. Overlay's non-nil fields take
// precedence.
func mergeProfiles(base, overlay ModelProfile) ModelProfile {
	result := base
	if overlay.DefaultModel != nil {
		result.DefaultModel = overlay.DefaultModel
	}
	if overlay.Temperature != nil {
		result.Temperature = overlay.Temperature
	}
	if overlay.MaxTokens != nil {
		result.MaxTokens = overlay.MaxTokens
	}
	return result
}

// toResolved converts a merged ModelProfile into a ResolvedProfile.
func toResolved(p ModelProfile) ResolvedProfile {
	r := ResolvedProfile{
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	if p.DefaultModel != nil {
		r.DefaultModel = *p.DefaultModel
	}
	return r
}

func ptr[T any](v T) *T { return &v }

// Built-in profiles, in resolution order.
var (
	defaultProfile = ModelProfile{
		DefaultModel: ptr("gpt-4o-mini"),
		MaxTokens:    ptr(1024),
	}

	openaiProfile = ModelProfile{
		Provider:     "openai",
		DefaultModel: ptr("gpt-4o-mini"),
	}

	// Reasoning models spend part of the budget before the first visible token.
	openaiReasoningProfile = ModelProfile{
		Provider:     "openai",
		ModelPattern: `^(o1|o3|o4)(-|$)`,
		MaxTokens:    ptr(4096),
	}

	anthropicProfile = ModelProfile{
		Provider:     "anthropic",
		DefaultModel: ptr("claude-sonnet-4-5"),
	}
)

func builtinProfiles() []ModelProfile {
	return []ModelProfile{
		defaultProfile,
		openaiProfile,
		openaiReasoningProfile,
		anthropicProfile,
	}
}
