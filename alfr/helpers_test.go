package alfr

import (
	"testing"

	"llmalfr-go/logger"
)

const testAlphabet = "こんにちは\n日本語のテキストを生成します。、 abc"

func runeIDs(tok *MockTokenizer, s string) []int {
	ids := make([]int, 0, len(s))
	for _, r := range s {
		ids = append(ids, tok.IDOf(r))
	}
	return ids
}

func newTestSession(t *testing.T, tok Tokenizer, model *MockModel, opts ...ConfigOption) *Session {
	t.Helper()
	base := []ConfigOption{WithLogger(logger.Discard()), WithSeed(1)}
	cfg, err := NewConfig(t.TempDir(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	sess, err := NewSession(cfg, &MockLoader{Tokenizer: tok, Model: model})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func noMinLength() ConfigOption {
	return WithSamplingParams(NewSamplingParams(WithMinLength(0)))
}
