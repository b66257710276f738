package alfr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateBeforeInitialization(t *testing.T) {
	var sess *Session
	for _, prompt := range []string{"", "こんにちは", "   "} {
		res := sess.Generate(context.Background(), prompt)
		if res.Kind != KindNotInitialized {
			t.Errorf("Expected not initialized, got %v", res.Kind)
		}
		if res.Message() != MsgNotInitialized {
			t.Errorf("Expected %q, got %q", MsgNotInitialized, res.Message())
		}
		if !errors.Is(res.Err(), ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", res.Err())
		}
	}
}

func TestGenerateAfterClose(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	sess := newTestSession(t, tok, NewMockModel(tok.Len(), MockEOSID, nil))
	_ = sess.Close()

	if res := sess.Generate(context.Background(), "こんにちは"); res.Kind != KindNotInitialized {
		t.Errorf("Expected not initialized after Close, got %v", res.Kind)
	}
}

func TestGenerateCleansContinuation(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	script := runeIDs(tok, "日本 語。。テキスト")
	model := NewMockModel(tok.Len(), MockEOSID, script)
	sess := newTestSession(t, tok, model, noMinLength())

	res := sess.Generate(context.Background(), "  こんにちは  ")
	if res.Kind != KindSuccess {
		t.Fatalf("Expected success, got %v: %s", res.Kind, res.Message())
	}
	if res.Text != "日本語。テキスト" {
		t.Errorf("Expected cleaned text, got %q", res.Text)
	}
	if strings.Contains(res.Text, " ") || strings.Contains(res.Text, "。。") {
		t.Errorf("Expected no spaces or doubled periods, got %q", res.Text)
	}
	if res.NewTokens != len(script)+1 {
		t.Errorf("Expected %d new tokens (script + eos), got %d", len(script)+1, res.NewTokens)
	}
	if res.RequestID == "" {
		t.Errorf("Expected a request ID")
	}
}

func TestGenerateEmptyOutput(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	sess := newTestSession(t, tok, model, noMinLength())

	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindEmptyOutput {
		t.Fatalf("Expected empty output, got %v: %s", res.Kind, res.Message())
	}
	if res.Message() != MsgEmptyOutput {
		t.Errorf("Expected %q, got %q", MsgEmptyOutput, res.Message())
	}
	if !errors.Is(res.Err(), ErrEmptyOutput) {
		t.Errorf("Expected ErrEmptyOutput, got %v", res.Err())
	}
}

func TestGenerateRespectsMinLength(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	// The model wants to stop immediately; eos is held back until the
	// sequence reaches 30 tokens.
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	sess := newTestSession(t, tok, model)

	res := sess.Generate(context.Background(), "こんにちは")
	promptTokens := 1 + len([]rune("こんにちは"))

	if promptTokens+res.NewTokens < 30 {
		t.Errorf("Expected at least 30 total tokens, got %d", promptTokens+res.NewTokens)
	}
	if want := 30 - promptTokens + 1; res.NewTokens != want {
		t.Errorf("Expected eos right after the floor (%d new tokens), got %d", want, res.NewTokens)
	}
}

func TestGenerateCapsNewTokens(t *testing.T) {
	var alphabet strings.Builder
	for r := rune(0x4E00); r < 0x4E00+400; r++ {
		alphabet.WriteRune(r)
	}
	tok := NewMockTokenizer(alphabet.String(), "")

	// 300 distinct tokens: no n-gram bans, no eos within the cap.
	script := make([]int, 300)
	for i := range script {
		script[i] = tok.IDOf(rune(0x4E00 + 10 + i))
	}
	model := NewMockModel(tok.Len(), MockEOSID, script)
	sess := newTestSession(t, tok, model)

	res := sess.Generate(context.Background(), string(rune(0x4E00)))
	if res.Kind != KindSuccess {
		t.Fatalf("Expected success, got %v: %s", res.Kind, res.Message())
	}
	if res.NewTokens != 256 {
		t.Errorf("Expected 256 new tokens, got %d", res.NewTokens)
	}
	if model.Calls != 256 {
		t.Errorf("Expected 256 forward passes, got %d", model.Calls)
	}
}

func TestGenerateTruncatesPrompt(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, runeIDs(tok, "日本"))
	sess := newTestSession(t, tok, model, noMinLength(), WithMaxInputTokens(4))

	res := sess.Generate(context.Background(), "こんにちは")
	// <s> こ ん に survive truncation; decoded "こんに日本" is the same
	// length as the stripped prompt, so nothing is left after the cut.
	if res.Kind != KindEmptyOutput {
		t.Errorf("Expected empty output after truncation, got %v: %s", res.Kind, res.Message())
	}
}

type faultyTokenizer struct {
	*MockTokenizer
	encodeErr error
	decodeErr error
}

func (f *faultyTokenizer) Encode(text string, maxLength int) (Encoding, error) {
	if f.encodeErr != nil {
		return Encoding{}, f.encodeErr
	}
	return f.MockTokenizer.Encode(text, maxLength)
}

func (f *faultyTokenizer) Decode(ids []int, skip bool) (string, error) {
	if f.decodeErr != nil {
		return "", f.decodeErr
	}
	return f.MockTokenizer.Decode(ids, skip)
}

func TestGenerateSurfacesEncodeFault(t *testing.T) {
	base := NewMockTokenizer(testAlphabet, "")
	tok := &faultyTokenizer{MockTokenizer: base, encodeErr: errors.New("encoder exploded")}
	sess := newTestSession(t, tok, NewMockModel(base.Len(), MockEOSID, nil))

	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindFault {
		t.Fatalf("Expected fault, got %v", res.Kind)
	}
	msg := res.Message()
	if !strings.HasPrefix(msg, "テキスト生成中にエラーが発生しました: ") {
		t.Errorf("Expected localized error prefix, got %q", msg)
	}
	if !strings.Contains(msg, "encoder exploded") {
		t.Errorf("Expected fault description in message, got %q", msg)
	}
}

func TestGenerateSurfacesDecodeFault(t *testing.T) {
	base := NewMockTokenizer(testAlphabet, "")
	tok := &faultyTokenizer{MockTokenizer: base, decodeErr: errors.New("decoder exploded")}
	model := NewMockModel(base.Len(), MockEOSID, runeIDs(base, "日本"))
	sess := newTestSession(t, tok, model, noMinLength())

	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindFault {
		t.Fatalf("Expected fault, got %v", res.Kind)
	}
	if !strings.Contains(res.Message(), "decoder exploded") {
		t.Errorf("Expected fault description in message, got %q", res.Message())
	}
}

func TestGenerateRecoversModelPanic(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	model.PanicAt = 1
	sess := newTestSession(t, tok, model)

	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindFault {
		t.Fatalf("Expected fault, got %v", res.Kind)
	}
	if !strings.Contains(res.Message(), "mock forward panic") {
		t.Errorf("Expected panic value in message, got %q", res.Message())
	}

	// The session stays usable after a recovered panic.
	model.PanicAt = 0
	if res := sess.Generate(context.Background(), "こんにちは"); res.Kind == KindFault {
		t.Errorf("Expected session to recover, got %s", res.Message())
	}
}

func TestGenerateModelError(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	model.FailAt = 2
	sess := newTestSession(t, tok, model)

	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindFault {
		t.Fatalf("Expected fault, got %v", res.Kind)
	}
	if !strings.Contains(res.Err().Error(), "mock forward failure") {
		t.Errorf("Expected wrapped model error, got %v", res.Err())
	}
}

func TestGenerateTimesOut(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	model.Delay = 200 * time.Millisecond
	sess := newTestSession(t, tok, model, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := sess.Generate(context.Background(), "こんにちは")
	if res.Kind != KindTimedOut {
		t.Fatalf("Expected timeout, got %v: %s", res.Kind, res.Message())
	}
	if res.Message() != MsgTimedOut {
		t.Errorf("Expected %q, got %q", MsgTimedOut, res.Message())
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("Expected the forward pass to be interrupted, took %v", time.Since(start))
	}
}

func TestGenerateCallerCancellation(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	sess := newTestSession(t, tok, NewMockModel(tok.Len(), MockEOSID, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := sess.Generate(ctx, "こんにちは")
	if res.Kind != KindFault {
		t.Fatalf("Expected fault on cancelled context, got %v", res.Kind)
	}
	if !errors.Is(res.Err(), context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", res.Err())
	}
}

func TestGenerateAllKeepsOrder(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	model := NewMockModel(tok.Len(), MockEOSID, nil)
	sess := newTestSession(t, tok, model, noMinLength())

	results := sess.GenerateAll(context.Background(), []string{"こんにちは", "日本語"}, false)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Kind != KindEmptyOutput {
			t.Errorf("result %d: expected empty output, got %v", i, res.Kind)
		}
	}
	if results[0].RequestID == results[1].RequestID {
		t.Errorf("Expected distinct request IDs")
	}
}

func TestProcessJoinsInstructionAndText(t *testing.T) {
	tok := NewMockTokenizer(testAlphabet, "")
	script := runeIDs(tok, "生成します。")
	model := NewMockModel(tok.Len(), MockEOSID, script)
	sess := newTestSession(t, tok, model, noMinLength())

	out, err := sess.Process(context.Background(), "日本語", "テキスト")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != "生成します。" {
		t.Errorf("Expected continuation, got %q", out)
	}
	if JoinPrompt("a", "b") != "a\n\nb" {
		t.Errorf("Unexpected prompt join: %q", JoinPrompt("a", "b"))
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindSuccess:        "success",
		KindNotInitialized: "not_initialized",
		KindEmptyOutput:    "empty_output",
		KindTimedOut:       "timed_out",
		KindFault:          "fault",
		Kind(42):           "kind(42)",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), k.String(), want)
		}
	}
}
