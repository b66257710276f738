package alfr

import (
	"context"

	"llmalfr-go/logger"
)

// Model is a causal language model that scores the next token.
// Implementations are not required to be safe for concurrent use.
type Model interface {
	// Logits runs a forward pass over the sequence and returns the
	// next-token scores for the last position. len(result) equals
	// NumEmbeddings().
	Logits(ctx context.Context, tokenIDs, attentionMask []int) ([]float32, error)

	// ResizeTokenEmbeddings sets the vocabulary size the model scores over
	ResizeTokenEmbeddings(n int)

	// NumEmbeddings returns the current embedding table row count
	NumEmbeddings() int

	// Eval switches the model to inference mode
	Eval()

	// Training reports whether the model is still in training mode
	Training() bool

	// Close releases runtime resources
	Close() error
}

// Encoding is an encoded prompt
type Encoding struct {
	IDs           []int
	AttentionMask []int
}

// Tokenizer maps text to token IDs and back
type Tokenizer interface {
	// Encode converts text to token IDs, adding special tokens and
	// truncating to maxLength.
	Encode(text string, maxLength int) (Encoding, error)

	// Decode converts token IDs to text
	Decode(tokenIDs []int, skipSpecialTokens bool) (string, error)

	// TokenToID resolves a token string. Unknown tokens resolve to the
	// unknown-token ID, or -1 if the vocabulary has none.
	TokenToID(token string) int

	// Len returns the vocabulary size including added tokens
	Len() int

	EOSToken() string
	EOSTokenID() int
	UnkTokenID() int
	PadToken() string
	PadTokenID() int

	// SetPadToken overrides the pad token and its ID
	SetPadToken(token string, id int)

	// Close releases native resources
	Close() error
}

// ModelOptions are threaded into the model at load time
type ModelOptions struct {
	Device     string
	DType      string
	NumThreads int
	PadTokenID int
	Logger     logger.Logger
}

// Loader reads tokenizer and model artifacts from a local directory.
// It must never fetch anything over the network.
type Loader interface {
	LoadTokenizer(dir string) (Tokenizer, error)
	LoadModel(dir string, opts ModelOptions) (Model, error)
}
