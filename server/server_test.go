package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"llmalfr-go/alfr"
	"llmalfr-go/logger"
)

// The last rune becomes the pad token and never shows up in output.
const alphabet = "こんにちは\n日本語テキスト要約x"

func newSession(t *testing.T, continuation string) *alfr.Session {
	t.Helper()
	tok := alfr.NewMockTokenizer(alphabet, "")
	var script []int
	for _, r := range continuation {
		script = append(script, tok.IDOf(r))
	}
	model := alfr.NewMockModel(tok.Len(), alfr.MockEOSID, script)

	cfg, err := alfr.NewConfig(t.TempDir(),
		alfr.WithLogger(logger.Discard()),
		alfr.WithSeed(1),
		alfr.WithSamplingParams(alfr.NewSamplingParams(alfr.WithMinLength(0))))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	sess, err := alfr.NewSession(cfg, &alfr.MockLoader{Tokenizer: tok, Model: model})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return resp
}

func TestGenerate(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, "日本語"))))

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"こんにちは"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp.Status != "success" || resp.Text != "日本語" || resp.Message != "日本語" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if resp.RequestID == "" || resp.NewTokens != 4 {
		t.Errorf("Expected request id and 4 new tokens, got %+v", resp)
	}
}

func TestGenerateEmptyOutput(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, ""))))

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"こんにちは"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp.Status != "empty_output" || resp.Message != alfr.MsgEmptyOutput || resp.Text != "" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestGenerateUninitialized(t *testing.T) {
	e := NewEcho(New(WithSession(nil)))

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"こんにちは"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d body=%s", rec.Code, rec.Body.String())
	}
	if resp := decode(t, rec); resp.Message != alfr.MsgNotInitialized {
		t.Errorf("Expected %q, got %q", alfr.MsgNotInitialized, resp.Message)
	}

	health := doJSON(t, e, http.MethodGet, "/healthz", "")
	if health.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected unhealthy without a session, got %d", health.Code)
	}
}

func TestGenerateBadBody(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, ""))))

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, ""))))

	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready":true`) {
		t.Errorf("Expected ready, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestProcessWithLocalSession(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, "要約"))))

	rec := doJSON(t, e, http.MethodPost, "/v1/process", `{"instruction":"日本語","context":"テキスト"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if resp := decode(t, rec); resp.Text != "要約" {
		t.Errorf("Expected continuation, got %+v", resp)
	}
}

func TestProcessRequiresInstruction(t *testing.T) {
	e := NewEcho(New(WithSession(newSession(t, ""))))

	rec := doJSON(t, e, http.MethodPost, "/v1/process", `{"context":"テキスト"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

type stubProcessor struct {
	gotInstruction string
	gotText        string
	out            string
	err            error
}

func (p *stubProcessor) Process(_ context.Context, instruction, text string) (string, error) {
	p.gotInstruction, p.gotText = instruction, text
	return p.out, p.err
}

func TestProcessWithProcessor(t *testing.T) {
	p := &stubProcessor{out: "価格は1799ドルからスタートします。"}
	e := NewEcho(New(WithSession(nil), WithProcessor(p)))

	rec := doJSON(t, e, http.MethodPost, "/v1/process", `{"instruction":"要約して","context":"本文"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp.Text != p.out || resp.Status != "success" || resp.RequestID == "" {
		t.Errorf("Unexpected response %+v", resp)
	}
	if p.gotInstruction != "要約して" || p.gotText != "本文" {
		t.Errorf("Processor got %q/%q", p.gotInstruction, p.gotText)
	}
}

func TestProcessProcessorErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.New("connection refused"), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, c := range cases {
		e := NewEcho(New(WithProcessor(&stubProcessor{err: c.err})))
		rec := doJSON(t, e, http.MethodPost, "/v1/process", `{"instruction":"a","context":"b"}`)
		if rec.Code != c.want {
			t.Errorf("%v: expected %d, got %d", c.err, c.want, rec.Code)
		}
		if resp := decode(t, rec); resp.Status != "fault" || resp.Message != c.err.Error() {
			t.Errorf("%v: unexpected response %+v", c.err, resp)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[alfr.Kind]int{
		alfr.KindSuccess:        http.StatusOK,
		alfr.KindEmptyOutput:    http.StatusOK,
		alfr.KindNotInitialized: http.StatusServiceUnavailable,
		alfr.KindTimedOut:       http.StatusGatewayTimeout,
		alfr.KindFault:          http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := httpStatus(k); got != want {
			t.Errorf("httpStatus(%v) = %d, want %d", k, got, want)
		}
	}
}
