package alfr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"llmalfr-go/logger"
)

// MsgInitialized is returned by a successful initialization.
const MsgInitialized = "Model initialized successfully"

// Session owns one tokenizer and model pair. Generate calls on the same
// Session are serialized.
type Session struct {
	mu        sync.Mutex
	cfg       *Config
	tokenizer Tokenizer
	model     Model
	sampler   *Sampler
	log       logger.Logger
}

// NewSession loads the tokenizer and model from cfg.ModelDir. Any load
// failure is returned as is; nothing is retried and no partial session is
// produced.
func NewSession(cfg *Config, loader Loader) (*Session, error) {
	log := cfg.Logger.With("model_dir", cfg.ModelDir)
	start := time.Now()

	tok, err := loader.LoadTokenizer(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	normalizePadToken(tok, cfg.PadToken)
	log.Debug("tokenizer loaded",
		"vocab", tok.Len(), "eos_id", tok.EOSTokenID(), "pad_id", tok.PadTokenID())

	model, err := loader.LoadModel(cfg.ModelDir, ModelOptions{
		Device:     cfg.Device,
		DType:      cfg.DType,
		NumThreads: cfg.NumThreads,
		PadTokenID: tok.PadTokenID(),
		Logger:     log,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to load model: %w", err), tok.Close())
	}

	// The pad token may have been added above; keep the embedding table in
	// step with the tokenizer.
	model.ResizeTokenEmbeddings(tok.Len())
	model.Eval()

	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}

	log.Info("model initialized",
		"vocab", tok.Len(),
		"embeddings", model.NumEmbeddings(),
		"dtype", cfg.DType,
		"elapsed", time.Since(start))

	return &Session{
		cfg:       cfg,
		tokenizer: tok,
		model:     model,
		sampler:   NewSampler(cfg.Sampling, seed),
		log:       cfg.Logger,
	}, nil
}

// normalizePadToken gives the tokenizer a pad token distinct from eos whose
// ID is neither negative nor the unknown-token ID. A pad token that does not
// resolve takes the last vocabulary ID.
func normalizePadToken(tok Tokenizer, padToken string) {
	if tok.PadToken() == "" || tok.PadToken() == tok.EOSToken() {
		tok.SetPadToken(padToken, tok.TokenToID(padToken))
	}
	if id := tok.PadTokenID(); id < 0 || id == tok.UnkTokenID() {
		tok.SetPadToken(tok.PadToken(), tok.Len()-1)
	}
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.cfg
}

// Tokenizer returns the loaded tokenizer, or nil after Close
func (s *Session) Tokenizer() Tokenizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenizer
}

// Model returns the loaded model, or nil after Close
func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Close releases the model and tokenizer. Later Generate calls report
// KindNotInitialized.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.model != nil {
		errs = append(errs, s.model.Close())
		s.model = nil
	}
	if s.tokenizer != nil {
		errs = append(errs, s.tokenizer.Close())
		s.tokenizer = nil
	}
	return errors.Join(errs...)
}
