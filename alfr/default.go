package alfr

import (
	"context"
	"sync"
)

// The process-wide slot behind InitializeModel and GenerateText. The last
// successful InitializeModel wins; the previous session is closed once the
// GenerateText calls running on it have returned.
var (
	defaultMu      sync.RWMutex
	defaultSession *Session
)

// InitializeModel loads a session from modelDir and installs it as the
// process-wide default. On failure the previous default is left in place.
func InitializeModel(modelDir string, loader Loader, opts ...ConfigOption) (string, error) {
	cfg, err := NewConfig(modelDir, opts...)
	if err != nil {
		return "", err
	}
	sess, err := NewSession(cfg, loader)
	if err != nil {
		return "", err
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if prev := defaultSession; prev != nil {
		if err := prev.Close(); err != nil {
			cfg.Logger.Warn("failed to close previous session", "error", err)
		}
	}
	defaultSession = sess
	return MsgInitialized, nil
}

// GenerateText generates with the default session and renders the outcome
// as a string. Before InitializeModel it returns MsgNotInitialized. A
// concurrent InitializeModel waits for it to finish.
func GenerateText(prompt string) string {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSession.Generate(context.Background(), prompt).Message()
}

// DefaultSession returns the process-wide session, or nil. The session is
// closed by the next InitializeModel or CloseDefault; in-flight Generate
// calls on it then report KindNotInitialized.
func DefaultSession() *Session {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSession
}

// CloseDefault closes and clears the process-wide session
func CloseDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	sess := defaultSession
	defaultSession = nil
	return sess.Close()
}
