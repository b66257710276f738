package alfr

import "fmt"

// SamplingParams holds the decoding parameters. The defaults are tuned for
// Japanese output and are applied to every Generate call of a Session.
type SamplingParams struct {
	MaxNewTokens       int
	Temperature        float64
	TopP               float64
	TopK               int
	RepetitionPenalty  float64
	NoRepeatNGramSize  int
	DoSample           bool
	NumReturnSequences int
	// MinLength counts prompt tokens too; eos is suppressed until the
	// whole sequence reaches it.
	MinLength int
}

// SamplingOption is a functional option for SamplingParams
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates a new SamplingParams with default values
func NewSamplingParams(opts ...SamplingOption) *SamplingParams {
	sp := &SamplingParams{
		MaxNewTokens:       256,
		Temperature:        0.7,
		TopP:               0.92,
		TopK:               50,
		RepetitionPenalty:  1.1,
		NoRepeatNGramSize:  3,
		DoSample:           true,
		NumReturnSequences: 1,
		MinLength:          30,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		panic(err)
	}

	return sp
}

// validate checks if the sampling parameters are valid
func (sp *SamplingParams) validate() error {
	if sp.MaxNewTokens < 1 {
		return fmt.Errorf("max_new_tokens must be >= 1")
	}
	if sp.DoSample && sp.Temperature <= 1e-10 {
		return fmt.Errorf("temperature must be positive when sampling")
	}
	if sp.TopP <= 0 || sp.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1]")
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top_k must be >= 0")
	}
	if sp.RepetitionPenalty <= 0 {
		return fmt.Errorf("repetition_penalty must be positive")
	}
	if sp.NoRepeatNGramSize < 0 {
		return fmt.Errorf("no_repeat_ngram_size must be >= 0")
	}
	if sp.NumReturnSequences != 1 {
		return fmt.Errorf("num_return_sequences must be 1")
	}
	if sp.MinLength < 0 {
		return fmt.Errorf("min_length must be >= 0")
	}
	return nil
}

// WithMaxNewTokens sets the maximum number of tokens to generate
func WithMaxNewTokens(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MaxNewTokens = n
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Temperature = t
	}
}

// WithTopP sets the nucleus sampling cutoff
func WithTopP(p float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopP = p
	}
}

// WithTopK sets the number of candidates kept per step; 0 disables the filter
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopK = k
	}
}

// WithRepetitionPenalty sets the penalty applied to already-seen tokens
func WithRepetitionPenalty(p float64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.RepetitionPenalty = p
	}
}

// WithNoRepeatNGramSize sets the banned n-gram length; 0 disables the ban
func WithNoRepeatNGramSize(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.NoRepeatNGramSize = n
	}
}

// WithDoSample switches between sampling and greedy decoding
func WithDoSample(b bool) SamplingOption {
	return func(sp *SamplingParams) {
		sp.DoSample = b
	}
}

// WithMinLength sets the minimum total sequence length before eos is allowed
func WithMinLength(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MinLength = n
	}
}
