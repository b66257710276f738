// Package vocab reads tokenizer metadata from a HuggingFace model
// directory: the token→ID table, special tokens, and the model config
// fields that matter for generation.
package vocab

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-json"
)

// Vocabulary holds the token table and special tokens of a model directory
type Vocabulary struct {
	tokens   map[string]int
	byID     map[int]string
	special  map[int]bool
	size     int
	EOSToken string
	BOSToken string
	PadToken string
	UnkToken string
	// Model config (config.json); negative when absent.
	ModelVocabSize int
	EOSTokenID     int
	PadTokenID     int
	ModelType      string
	TorchDType     string
}

// Load reads tokenizer.json (required), tokenizer_config.json and
// config.json (optional) from dir
func Load(dir string) (*Vocabulary, error) {
	v := &Vocabulary{
		tokens:         make(map[string]int),
		byID:           make(map[int]string),
		special:        make(map[int]bool),
		ModelVocabSize: -1,
		EOSTokenID:     -1,
		PadTokenID:     -1,
	}

	if err := v.loadTokenizerJSON(dir); err != nil {
		return nil, err
	}
	if err := v.loadTokenizerConfig(dir); err != nil {
		return nil, err
	}
	if err := v.loadModelConfig(dir); err != nil {
		return nil, err
	}
	return v, nil
}

// tokenizerJSON is the subset of tokenizer.json we need. model.vocab is a
// map for BPE/WordPiece and a list of [piece, score] pairs for Unigram.
type tokenizerJSON struct {
	Model struct {
		Type     string          `json:"type"`
		Vocab    json.RawMessage `json:"vocab"`
		UnkToken string          `json:"unk_token"`
		UnkID    *int            `json:"unk_id"`
	} `json:"model"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

func (v *Vocabulary) loadTokenizerJSON(dir string) error {
	path := filepath.Join(dir, "tokenizer.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var tj tokenizerJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}

	if len(tj.Model.Vocab) > 0 {
		switch tj.Model.Vocab[0] {
		case '{':
			var m map[string]int
			if err := json.Unmarshal(tj.Model.Vocab, &m); err != nil {
				return fmt.Errorf("failed to parse vocab map: %w", err)
			}
			for _, tok := range slices.Sorted(maps.Keys(m)) {
				v.put(tok, m[tok])
			}
		case '[':
			var pieces [][]any
			if err := json.Unmarshal(tj.Model.Vocab, &pieces); err != nil {
				return fmt.Errorf("failed to parse unigram vocab: %w", err)
			}
			for id, p := range pieces {
				if len(p) == 0 {
					continue
				}
				if tok, ok := p[0].(string); ok {
					v.put(tok, id)
				}
			}
		default:
			return fmt.Errorf("unexpected vocab encoding in tokenizer.json")
		}
	}

	for _, at := range tj.AddedTokens {
		v.put(at.Content, at.ID)
		// Added tokens name their ID even when the base vocab has it too.
		v.byID[at.ID] = at.Content
		if at.Special {
			v.special[at.ID] = true
		}
	}

	if tj.Model.UnkToken != "" {
		v.UnkToken = tj.Model.UnkToken
	} else if tj.Model.UnkID != nil {
		if tok, ok := v.tokenFor(*tj.Model.UnkID); ok {
			v.UnkToken = tok
		}
	}
	return nil
}

// put records tok as id. The first token put for an ID names it.
func (v *Vocabulary) put(tok string, id int) {
	v.tokens[tok] = id
	if _, ok := v.byID[id]; !ok {
		v.byID[id] = tok
	}
	if id+1 > v.size {
		v.size = id + 1
	}
}

func (v *Vocabulary) tokenFor(id int) (string, bool) {
	tok, ok := v.byID[id]
	return tok, ok
}

func (v *Vocabulary) loadTokenizerConfig(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read tokenizer_config.json: %w", err)
	}

	var cfg struct {
		EOSToken any `json:"eos_token"`
		BOSToken any `json:"bos_token"`
		PadToken any `json:"pad_token"`
		UnkToken any `json:"unk_token"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse tokenizer_config.json: %w", err)
	}

	v.EOSToken = tokenString(cfg.EOSToken)
	v.BOSToken = tokenString(cfg.BOSToken)
	v.PadToken = tokenString(cfg.PadToken)
	if unk := tokenString(cfg.UnkToken); unk != "" {
		v.UnkToken = unk
	}
	return nil
}

// tokenString extracts a token from a string or {"content": ...} value
func tokenString(val any) string {
	switch t := val.(type) {
	case string:
		return t
	case map[string]any:
		if content, ok := t["content"].(string); ok {
			return content
		}
	}
	return ""
}

func (v *Vocabulary) loadModelConfig(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config.json: %w", err)
	}

	var cfg struct {
		VocabSize  int             `json:"vocab_size"`
		EOSTokenID json.RawMessage `json:"eos_token_id"`
		PadTokenID *int            `json:"pad_token_id"`
		ModelType  string          `json:"model_type"`
		TorchDType string          `json:"torch_dtype"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config.json: %w", err)
	}

	if cfg.VocabSize > 0 {
		v.ModelVocabSize = cfg.VocabSize
	}
	if cfg.PadTokenID != nil {
		v.PadTokenID = *cfg.PadTokenID
	}
	v.ModelType = cfg.ModelType
	v.TorchDType = cfg.TorchDType

	// eos_token_id is an int or a list of ints; the first one wins.
	if len(cfg.EOSTokenID) > 0 {
		var id int
		var ids []int
		if err := json.Unmarshal(cfg.EOSTokenID, &id); err == nil {
			v.EOSTokenID = id
		} else if err := json.Unmarshal(cfg.EOSTokenID, &ids); err == nil && len(ids) > 0 {
			v.EOSTokenID = ids[0]
		}
	}
	return nil
}

// ID resolves a token string
func (v *Vocabulary) ID(token string) (int, bool) {
	id, ok := v.tokens[token]
	return id, ok
}

// Size is the number of token IDs, added tokens included
func (v *Vocabulary) Size() int {
	return v.size
}

// IsSpecial reports whether id is a special added token
func (v *Vocabulary) IsSpecial(id int) bool {
	return v.special[id]
}

// SpecialIDs returns the IDs of special added tokens in ascending order
func (v *Vocabulary) SpecialIDs() []int {
	return slices.Sorted(maps.Keys(v.special))
}

// ResolveEOS returns the eos token and ID, preferring tokenizer_config.json
// and falling back to config.json
func (v *Vocabulary) ResolveEOS() (string, int) {
	if v.EOSToken != "" {
		if id, ok := v.ID(v.EOSToken); ok {
			return v.EOSToken, id
		}
	}
	if v.EOSTokenID >= 0 {
		tok, _ := v.tokenFor(v.EOSTokenID)
		return tok, v.EOSTokenID
	}
	return "", -1
}

// ResolveUnk returns the unknown-token ID, or -1
func (v *Vocabulary) ResolveUnk() int {
	if v.UnkToken == "" {
		return -1
	}
	if id, ok := v.ID(v.UnkToken); ok {
		return id
	}
	return -1
}
