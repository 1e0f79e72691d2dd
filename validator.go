package mycache

import "context"

// Validator is the optional entry-validation capability (spec.md §6): it
// wraps a Sink so the orchestrator can observe the bytes flowing to the
// caller and reject the result after the full payload has been written.
type Validator interface {
	// ValidatePassThrough wraps dest in a stream that observes every
	// byte written for key, without altering what dest receives.
	ValidatePassThrough(key string, dest Sink) ValidationSink

	// ValidateAsync is called once writing through the pass-through
	// sink has completed. A non-nil error (wrapped in
	// ErrValidationFailed by the caller) means the payload must be
	// evicted from the local cache.
	ValidateAsync(ctx context.Context, key string, vs ValidationSink) error
}

// ValidationSink is a Sink that also remembers enough about what passed
// through it for a later ValidateAsync call to inspect.
type ValidationSink interface {
	Sink
}

// passThroughSink is the default pass-through implementation: it simply
// forwards everything to the wrapped Sink and records nothing extra,
// used when a Group has no Validator configured.
type passThroughSink struct {
	Sink
}

func (p passThroughSink) view() (ByteView, error) { return p.Sink.view() }

// noopValidator never rejects anything; it is the default when a Group
// is constructed without an explicit Validator.
type noopValidator struct{}

func (noopValidator) ValidatePassThrough(key string, dest Sink) ValidationSink {
	return passThroughSink{Sink: dest}
}

func (noopValidator) ValidateAsync(ctx context.Context, key string, vs ValidationSink) error {
	return nil
}

func defaultValidator(v Validator) Validator {
	if v == nil {
		return noopValidator{}
	}
	return v
}
