// Package transcription holds provider-independent configuration for
// speech-to-text adapters.
package transcription

type Options struct {
	Model    string
	Language string
}

type Option func(*Options)

// WithModel selects the provider's recognition model.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithLanguage sets the expected language of the user's speech, as a BCP-47
// tag.
func WithLanguage(language string) Option {
	return func(o *Options) {
		o.Language = language
	}
}
