package alfr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Messages returned by GenerateText and Result.Message.
const (
	MsgNotInitialized = "Error: Model not initialized"
	MsgTimedOut       = "Error: Generation timed out"
	MsgEmptyOutput    = "生成された回答はありません。"
	msgFaultFormat    = "テキスト生成中にエラーが発生しました: %s"
)

var (
	ErrNotInitialized = errors.New("model not initialized")
	ErrEmptyOutput    = errors.New("no text generated")
	ErrTimedOut       = errors.New("generation timed out")
)

// Kind tags the outcome of a Generate call
type Kind int

const (
	KindSuccess Kind = iota
	KindNotInitialized
	KindEmptyOutput
	KindTimedOut
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNotInitialized:
		return "not_initialized"
	case KindEmptyOutput:
		return "empty_output"
	case KindTimedOut:
		return "timed_out"
	case KindFault:
		return "fault"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one Generate call
type Result struct {
	Kind      Kind
	Text      string
	RequestID string
	NewTokens int
	Elapsed   time.Duration

	err error
}

// OK reports whether text was generated
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

// Err returns nil on success and a descriptive error otherwise
func (r Result) Err() error {
	switch r.Kind {
	case KindSuccess:
		return nil
	case KindNotInitialized:
		return ErrNotInitialized
	case KindEmptyOutput:
		return ErrEmptyOutput
	case KindTimedOut:
		return ErrTimedOut
	default:
		return r.err
	}
}

// Message renders the result as a single user-facing string: the generated
// text, or a localized fallback for every other kind.
func (r Result) Message() string {
	switch r.Kind {
	case KindSuccess:
		return r.Text
	case KindNotInitialized:
		return MsgNotInitialized
	case KindEmptyOutput:
		return MsgEmptyOutput
	case KindTimedOut:
		return MsgTimedOut
	default:
		desc := "unknown error"
		if r.err != nil {
			desc = r.err.Error()
		}
		return fmt.Sprintf(msgFaultFormat, desc)
	}
}

// Generate runs one prompt through the model. It never panics and never
// returns a bare error: every outcome is tagged in the Result. The session
// timeout is enforced between decoding steps and passed to each forward
// pass.
func (s *Session) Generate(ctx context.Context, prompt string) Result {
	res := Result{RequestID: uuid.NewString()}
	if s == nil {
		res.Kind = KindNotInitialized
		return res
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model == nil || s.tokenizer == nil {
		res.Kind = KindNotInitialized
		return res
	}

	log := s.log.With("request_id", res.RequestID)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text, newTokens, err := s.generate(ctx, prompt)
	res.Elapsed = time.Since(start)
	res.NewTokens = newTokens

	switch {
	case err == nil:
		res.Kind = KindSuccess
		res.Text = text
	case errors.Is(err, context.DeadlineExceeded):
		res.Kind = KindTimedOut
	case errors.Is(err, ErrEmptyOutput):
		res.Kind = KindEmptyOutput
	default:
		res.Kind = KindFault
		res.err = err
	}

	if res.Kind == KindFault {
		log.Error("generation failed", "error", err, "elapsed", res.Elapsed)
	} else {
		log.Info("generation finished",
			"kind", res.Kind, "new_tokens", newTokens, "elapsed", res.Elapsed)
	}
	return res
}

// generate encodes, samples and decodes. Panics raised by the tokenizer or
// the model are converted to errors.
func (s *Session) generate(ctx context.Context, prompt string) (text string, newTokens int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during generation: %v", rec)
		}
	}()

	params := s.cfg.Sampling
	prompt = strings.TrimSpace(prompt)

	enc, err := s.tokenizer.Encode(prompt, s.cfg.MaxInputTokens)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode prompt: %w", err)
	}

	seq := NewSequence(enc.IDs, enc.AttentionMask, params.NoRepeatNGramSize)
	eos := s.tokenizer.EOSTokenID()

	for seq.NumCompletionTokens() < params.MaxNewTokens {
		if err := ctx.Err(); err != nil {
			return "", seq.NumCompletionTokens(), err
		}

		logits, err := s.model.Logits(ctx, seq.TokenIDs, seq.AttentionMask)
		if err != nil {
			return "", seq.NumCompletionTokens(), fmt.Errorf("model inference failed: %w", err)
		}

		next, err := s.sampler.Next(logits, seq, eos)
		if err != nil {
			return "", seq.NumCompletionTokens(), err
		}

		seq.AppendToken(next)
		if next == eos {
			break
		}
	}
	seq.Finish()

	// A forward pass may run past the deadline without observing ctx.
	if err := ctx.Err(); err != nil {
		return "", seq.NumCompletionTokens(), err
	}

	decoded, err := s.tokenizer.Decode(seq.TokenIDs, true)
	if err != nil {
		return "", seq.NumCompletionTokens(), fmt.Errorf("failed to decode tokens: %w", err)
	}

	text, ok := extractCompletion(decoded, prompt)
	if !ok {
		return "", seq.NumCompletionTokens(), ErrEmptyOutput
	}
	return text, seq.NumCompletionTokens(), nil
}

// GenerateAll runs each prompt in turn and returns results in prompt order.
func (s *Session) GenerateAll(ctx context.Context, prompts []string, showProgress bool) []Result {
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(prompts),
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	results := make([]Result, len(prompts))
	for i, prompt := range prompts {
		results[i] = s.Generate(ctx, prompt)

		if bar != nil {
			if secs := results[i].Elapsed.Seconds(); secs > 0 {
				bar.Describe(fmt.Sprintf("Generating [Decode: %dtok/s]",
					int(float64(results[i].NewTokens)/secs)))
			}
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	return results
}
