// Package synthesis holds provider-independent configuration for
// text-to-speech adapters.
package synthesis

type Options struct {
	Voice string
}

type Option func(*Options)

// WithVoice selects the provider's voice model. Providers validate the
// value against their own voice catalog.
func WithVoice(voice string) Option {
	return func(o *Options) {
		o.Voice = voice
	}
}
