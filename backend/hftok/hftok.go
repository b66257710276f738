// Package hftok adapts HuggingFace tokenizer.json files, through the
// native tokenizers bindings, to alfr.Tokenizer.
package hftok

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/daulet/tokenizers"

	"llmalfr-go/alfr"
	"llmalfr-go/backend/vocab"
)

// Tokenizer wraps a native tokenizer with the metadata the native
// bindings do not expose
type Tokenizer struct {
	tk       *tokenizers.Tokenizer
	vocab    *vocab.Vocabulary
	size     int
	eosToken string
	eosID    int
	unkID    int
	padToken string
	padID    int
}

var _ alfr.Tokenizer = (*Tokenizer)(nil)

// Load reads tokenizer.json and its companion config files from dir
func Load(dir string) (*Tokenizer, error) {
	v, err := vocab.Load(dir)
	if err != nil {
		return nil, err
	}

	tk, err := tokenizers.FromFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	t := &Tokenizer{
		tk:       tk,
		vocab:    v,
		size:     max(v.Size(), int(tk.VocabSize())),
		unkID:    v.ResolveUnk(),
		padToken: v.PadToken,
		padID:    -1,
	}
	t.eosToken, t.eosID = v.ResolveEOS()

	if t.padToken != "" {
		if id, ok := v.ID(t.padToken); ok {
			t.padID = id
		}
	} else if v.PadTokenID >= 0 {
		t.padID = v.PadTokenID
	}
	return t, nil
}

// Encode adds special tokens and keeps at most maxLength tokens. Overlong
// input loses content from the end; the special tokens the post-processor
// added around it are kept.
func (t *Tokenizer) Encode(text string, maxLength int) (alfr.Encoding, error) {
	if t.tk == nil {
		return alfr.Encoding{}, fmt.Errorf("tokenizer is closed")
	}
	enc := t.tk.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())

	if maxLength <= 0 || len(enc.IDs) <= maxLength {
		out := alfr.Encoding{
			IDs:           make([]int, len(enc.IDs)),
			AttentionMask: make([]int, len(enc.IDs)),
		}
		for i, id := range enc.IDs {
			out.IDs[i] = int(id)
			out.AttentionMask[i] = 1
			if i < len(enc.AttentionMask) {
				out.AttentionMask[i] = int(enc.AttentionMask[i])
			}
		}
		return out, nil
	}

	content := t.tk.EncodeWithOptions(text, false)
	ids := truncate(enc.IDs, content.IDs, maxLength)
	out := alfr.Encoding{
		IDs:           make([]int, len(ids)),
		AttentionMask: make([]int, len(ids)),
	}
	for i, id := range ids {
		out.IDs[i] = int(id)
		out.AttentionMask[i] = 1
	}
	return out, nil
}

// truncate cuts full, the encoding with special tokens, down to maxLength by
// dropping the tail of content. When content is not a contiguous run of
// full, or the special tokens alone exceed maxLength, full is cut from the
// end.
func truncate(full, content []uint32, maxLength int) []uint32 {
	added := len(full) - len(content)
	if added < 0 || added >= maxLength {
		return full[:maxLength]
	}
	for start := 0; start <= added; start++ {
		if !slices.Equal(full[start:start+len(content)], content) {
			continue
		}
		keep := maxLength - added
		out := make([]uint32, 0, maxLength)
		out = append(out, full[:start]...)
		out = append(out, content[:keep]...)
		return append(out, full[start+len(content):]...)
	}
	return full[:maxLength]
}

// Decode converts IDs back to text. With skipSpecialTokens the pad ID is
// dropped too.
func (t *Tokenizer) Decode(tokenIDs []int, skipSpecialTokens bool) (string, error) {
	if t.tk == nil {
		return "", fmt.Errorf("tokenizer is closed")
	}
	ids := make([]uint32, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id < 0 || id >= t.size {
			return "", fmt.Errorf("token id %d out of range [0, %d)", id, t.size)
		}
		if skipSpecialTokens && id == t.padID {
			continue
		}
		ids = append(ids, uint32(id))
	}
	return t.tk.Decode(ids, skipSpecialTokens), nil
}

func (t *Tokenizer) TokenToID(token string) int {
	if id, ok := t.vocab.ID(token); ok {
		return id
	}
	return t.unkID
}

func (t *Tokenizer) Len() int { return t.size }
func (t *Tokenizer) EOSToken() string { return t.eosToken }
func (t *Tokenizer) EOSTokenID() int { return t.eosID }
func (t *Tokenizer) UnkTokenID() int { return t.unkID }
func (t *Tokenizer) PadToken() string { return t.padToken }
func (t *Tokenizer) PadTokenID() int { return t.padID }
func (t *Tokenizer) Vocab() *vocab.Vocabulary { return t.vocab }

// SetPadToken overrides the pad token. An ID past the end of the
// vocabulary grows Len to cover it.
func (t *Tokenizer) SetPadToken(token string, id int) {
	t.padToken = token
	t.padID = id
	if id >= t.size {
		t.size = id + 1
	}
}

// Close releases the native tokenizer
func (t *Tokenizer) Close() error {
	if t.tk == nil {
		return nil
	}
	err := t.tk.Close()
	t.tk = nil
	return err
}
