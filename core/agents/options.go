// Package agents holds provider-independent configuration for
// reply-generation adapters.
package agents

type Options struct {
	Model        string
	Instructions string
}

type Option func(*Options)

// WithModel selects the provider's generation model.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithInstructions sets the system prompt prepended to every generation
// request.
func WithInstructions(instructions string) Option {
	return func(o *Options) {
		o.Instructions = instructions
	}
}
