package alfr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Special token IDs of MockTokenizer.
const (
	MockUnkID = 0
	MockBOSID = 1
	MockEOSID = 2
)

// MockTokenizer is a rune-level tokenizer for tests and dry runs. Every rune
// of its alphabet is one token; the first three IDs are <unk>, <s>, </s>.
type MockTokenizer struct {
	vocab    map[string]int
	invVocab map[int]string
	padToken string
	padID    int
	closed   bool
}

// NewMockTokenizer creates a mock tokenizer over the runes of alphabet.
// padToken may be empty (no pad token) or an existing token such as "</s>".
func NewMockTokenizer(alphabet string, padToken string) *MockTokenizer {
	t := &MockTokenizer{
		vocab:    make(map[string]int),
		invVocab: make(map[int]string),
		padID:    -1,
	}
	for _, tok := range []string{"<unk>", "<s>", "</s>"} {
		t.add(tok)
	}
	for _, r := range alphabet {
		t.add(string(r))
	}
	if padToken != "" {
		t.padToken = padToken
		t.padID = t.TokenToID(padToken)
	}
	return t
}

func (t *MockTokenizer) add(tok string) {
	if _, ok := t.vocab[tok]; ok {
		return
	}
	id := len(t.vocab)
	t.vocab[tok] = id
	t.invVocab[id] = tok
}

// Encode prepends <s> and maps each rune to its ID
func (t *MockTokenizer) Encode(text string, maxLength int) (Encoding, error) {
	ids := []int{MockBOSID}
	for _, r := range text {
		ids = append(ids, t.TokenToID(string(r)))
	}
	if maxLength > 0 && len(ids) > maxLength {
		ids = ids[:maxLength]
	}
	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return Encoding{IDs: ids, AttentionMask: mask}, nil
}

// Decode joins the tokens, dropping special ones when asked
func (t *MockTokenizer) Decode(tokenIDs []int, skipSpecialTokens bool) (string, error) {
	var b strings.Builder
	for _, id := range tokenIDs {
		tok, ok := t.invVocab[id]
		if !ok {
			return "", fmt.Errorf("token id %d out of range", id)
		}
		if skipSpecialTokens && t.isSpecial(id) {
			continue
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

func (t *MockTokenizer) isSpecial(id int) bool {
	return id == MockUnkID || id == MockBOSID || id == MockEOSID || id == t.padID
}

// TokenToID resolves a token, falling back to <unk>
func (t *MockTokenizer) TokenToID(token string) int {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return MockUnkID
}

// IDOf is TokenToID for a single rune
func (t *MockTokenizer) IDOf(r rune) int {
	return t.TokenToID(string(r))
}

func (t *MockTokenizer) Len() int         { return len(t.vocab) }
func (t *MockTokenizer) EOSToken() string { return "</s>" }
func (t *MockTokenizer) EOSTokenID() int  { return MockEOSID }
func (t *MockTokenizer) UnkTokenID() int  { return MockUnkID }
func (t *MockTokenizer) PadToken() string { return t.padToken }
func (t *MockTokenizer) PadTokenID() int  { return t.padID }

// SetPadToken overrides the pad token and its ID
func (t *MockTokenizer) SetPadToken(token string, id int) {
	t.padToken = token
	t.padID = id
}

// Close marks the tokenizer closed
func (t *MockTokenizer) Close() error {
	t.closed = true
	return nil
}

// MockModel emits a scripted token sequence: step i strongly favours
// Script[i] and every step past the script favours EOS.
type MockModel struct {
	Script []int
	EOS    int
	// Vocab is the embedding row count before any resize.
	Vocab int
	// FailAt and PanicAt trigger on the given 1-based forward call.
	FailAt  int
	PanicAt int
	// Delay is slept before each forward pass, honouring ctx.
	Delay time.Duration

	Calls    int
	Resized  bool
	LastOpts ModelOptions

	rows     int
	training bool
	closed   bool
}

// NewMockModel creates a mock model in training mode
func NewMockModel(vocab, eos int, script []int) *MockModel {
	return &MockModel{
		Script:   script,
		EOS:      eos,
		Vocab:    vocab,
		rows:     vocab,
		training: true,
	}
}

// Logits returns a peaked score vector for the next scripted token
func (m *MockModel) Logits(ctx context.Context, tokenIDs, attentionMask []int) ([]float32, error) {
	m.Calls++
	if m.PanicAt > 0 && m.Calls == m.PanicAt {
		panic("mock forward panic")
	}
	if m.FailAt > 0 && m.Calls == m.FailAt {
		return nil, fmt.Errorf("mock forward failure at call %d", m.Calls)
	}
	if len(tokenIDs) != len(attentionMask) {
		return nil, fmt.Errorf("attention mask length %d != token length %d", len(attentionMask), len(tokenIDs))
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	step := m.Calls - 1
	next := m.EOS
	if step < len(m.Script) {
		next = m.Script[step]
	}

	logits := make([]float32, m.rows)
	if next >= 0 && next < len(logits) {
		logits[next] = 100
	}
	return logits, nil
}

// ResizeTokenEmbeddings sets the embedding row count
func (m *MockModel) ResizeTokenEmbeddings(n int) {
	m.rows = n
	m.Resized = true
}

func (m *MockModel) NumEmbeddings() int { return m.rows }
func (m *MockModel) Eval()              { m.training = false }
func (m *MockModel) Training() bool     { return m.training }

// Close marks the model closed
func (m *MockModel) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockModel) Closed() bool {
	return m.closed
}

// MockLoader hands out pre-built components
type MockLoader struct {
	Tokenizer    Tokenizer
	Model        *MockModel
	TokenizerErr error
	ModelErr     error
}

// LoadTokenizer returns the configured tokenizer
func (l *MockLoader) LoadTokenizer(dir string) (Tokenizer, error) {
	if l.TokenizerErr != nil {
		return nil, l.TokenizerErr
	}
	return l.Tokenizer, nil
}

// LoadModel returns the configured model and records opts
func (l *MockLoader) LoadModel(dir string, opts ModelOptions) (Model, error) {
	if l.ModelErr != nil {
		return nil, l.ModelErr
	}
	l.Model.LastOpts = opts
	return l.Model, nil
}
