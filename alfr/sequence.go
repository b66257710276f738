package alfr

// SequenceStatus represents the status of a sequence
type SequenceStatus int

const (
	StatusRunning SequenceStatus = iota
	StatusFinished
)

// Sequence is the token state of a single generation: the encoded prompt
// followed by every sampled token.
type Sequence struct {
	Status          SequenceStatus
	TokenIDs        []int
	AttentionMask   []int
	LastToken       int
	NumPromptTokens int

	ngrams *ngramIndex
}

// NewSequence creates a new sequence from prompt token IDs and their
// attention mask. A nil mask attends to every token. ngramSize <= 0 disables
// n-gram tracking.
func NewSequence(tokenIDs, attentionMask []int, ngramSize int) *Sequence {
	tokens := make([]int, len(tokenIDs))
	copy(tokens, tokenIDs)

	mask := make([]int, len(tokenIDs))
	if attentionMask == nil {
		for i := range mask {
			mask[i] = 1
		}
	} else {
		copy(mask, attentionMask)
	}

	last := -1
	if len(tokens) > 0 {
		last = tokens[len(tokens)-1]
	}

	seq := &Sequence{
		Status:          StatusRunning,
		TokenIDs:        tokens,
		AttentionMask:   mask,
		LastToken:       last,
		NumPromptTokens: len(tokens),
		ngrams:          newNGramIndex(ngramSize),
	}
	seq.ngrams.addAll(tokens)
	return seq
}

// Len returns the number of tokens in the sequence
func (s *Sequence) Len() int {
	return len(s.TokenIDs)
}

// IsFinished returns true if the sequence has finished generating
func (s *Sequence) IsFinished() bool {
	return s.Status == StatusFinished
}

// Finish marks the sequence as finished
func (s *Sequence) Finish() {
	s.Status = StatusFinished
}

// NumCompletionTokens returns the number of completion tokens
func (s *Sequence) NumCompletionTokens() int {
	return len(s.TokenIDs) - s.NumPromptTokens
}

// PromptTokenIDs returns the prompt token IDs
func (s *Sequence) PromptTokenIDs() []int {
	return s.TokenIDs[:s.NumPromptTokens]
}

// CompletionTokenIDs returns the completion token IDs
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// BannedNext returns the tokens that would complete an n-gram already in
// the sequence.
func (s *Sequence) BannedNext() []int {
	return s.ngrams.banned(s.TokenIDs)
}

// AppendToken appends a token to the sequence
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.AttentionMask = append(s.AttentionMask, 1)
	s.LastToken = tokenID
	s.ngrams.addLast(s.TokenIDs)
}
