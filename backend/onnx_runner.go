// Package backend loads causal language models exported to ONNX and their
// HuggingFace tokenizers from a local model directory.
package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"

	"llmalfr-go/alfr"
	"llmalfr-go/backend/vocab"
	"llmalfr-go/logger"
)

const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	positionIDs   = "position_ids"
	logitsOutput  = "logits"
)

var (
	envMu      sync.Mutex
	envStarted bool
)

// ensureEnvironment starts ONNX Runtime once per process. ONNXRUNTIME_LIB
// overrides the shared library location.
func ensureEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envStarted || ort.IsInitialized() {
		envStarted = true
		return nil
	}
	if lib := os.Getenv("ONNXRUNTIME_LIB"); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	envStarted = true
	return nil
}

// ONNXModel implements alfr.Model over an ONNX Runtime session. The graph
// is run over the full sequence on every step; no KV cache is kept.
type ONNXModel struct {
	session    *ort.DynamicAdvancedSession
	modelPath  string
	inputs     []string
	logitsType ort.TensorElementDataType
	width      int // logits width produced by the graph
	rows       int // effective embedding rows after resizing
	training   bool
	log        logger.Logger
}

var _ alfr.Model = (*ONNXModel)(nil)

// modelFile picks the ONNX file for dtype
func modelFile(dir, dtype string) (string, error) {
	names := []string{"model.onnx"}
	if dtype == "float16" {
		names = []string{"model_fp16.onnx", "model.onnx"}
	}
	for _, sub := range []string{"", "onnx"} {
		for _, name := range names {
			path := filepath.Join(dir, sub, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("no ONNX model found in %s (tried %v)", dir, names)
}

// LoadONNXModel opens the model in dir on the CPU
func LoadONNXModel(dir string, opts alfr.ModelOptions) (*ONNXModel, error) {
	if opts.Device != "" && opts.Device != "cpu" {
		return nil, fmt.Errorf("unsupported device %q", opts.Device)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	path, err := modelFile(dir, opts.DType)
	if err != nil {
		return nil, err
	}
	if err := ensureEnvironment(); err != nil {
		return nil, err
	}

	sig, err := readSignature(path)
	if err != nil {
		return nil, err
	}

	width := sig.logitsWidth
	if width <= 0 {
		// Symbolic vocab dimension: fall back to config.json.
		v, err := vocab.Load(dir)
		if err != nil {
			return nil, err
		}
		if v.ModelVocabSize <= 0 {
			return nil, fmt.Errorf("logits width is dynamic and config.json has no vocab_size")
		}
		width = v.ModelVocabSize
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
		if err := options.SetInterOpNumThreads(1); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}
	if err := options.SetCpuMemArena(true); err != nil {
		return nil, fmt.Errorf("failed to enable memory arena: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(path, sig.inputs, []string{logitsOutput}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info("onnx session ready",
		"path", path,
		"inputs", sig.inputs,
		"logits_type", fmt.Sprint(sig.logitsType),
		"vocab", width,
		"pad_id", opts.PadTokenID,
		"threads", opts.NumThreads)

	return &ONNXModel{
		session:    session,
		modelPath:  path,
		inputs:     sig.inputs,
		logitsType: sig.logitsType,
		width:      width,
		rows:       width,
		training:   true,
		log:        log,
	}, nil
}

type signature struct {
	inputs      []string
	logitsType  ort.TensorElementDataType
	logitsWidth int
}

// readSignature checks the graph is a plain causal LM: input_ids plus
// optional attention_mask and position_ids in, logits out
func readSignature(path string) (signature, error) {
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return signature{}, fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	var sig signature
	for _, in := range ins {
		switch in.Name {
		case inputIDs, attentionMask, positionIDs:
			sig.inputs = append(sig.inputs, in.Name)
		default:
			return signature{}, fmt.Errorf("unsupported model input %q (export without past key values)", in.Name)
		}
	}
	if !slices.Contains(sig.inputs, inputIDs) {
		return signature{}, fmt.Errorf("model has no %s input", inputIDs)
	}

	found := false
	for _, out := range outs {
		if out.Name != logitsOutput {
			continue
		}
		found = true
		sig.logitsType = out.DataType
		if dims := out.Dimensions; len(dims) > 0 {
			sig.logitsWidth = int(dims[len(dims)-1])
		}
	}
	if !found {
		return signature{}, fmt.Errorf("model has no %s output", logitsOutput)
	}
	switch sig.logitsType {
	case ort.TensorElementDataTypeFloat, ort.TensorElementDataTypeFloat16:
	default:
		return signature{}, fmt.Errorf("unsupported logits type %v", sig.logitsType)
	}
	return sig, nil
}

// Logits runs the graph over the sequence and returns scores for the last
// position, sized to NumEmbeddings
func (m *ONNXModel) Logits(ctx context.Context, tokenIDs, mask []int) ([]float32, error) {
	if m.session == nil {
		return nil, fmt.Errorf("model is closed")
	}
	if m.training {
		return nil, fmt.Errorf("model is not in inference mode")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := len(tokenIDs)
	if n == 0 {
		return nil, fmt.Errorf("empty sequence")
	}
	if len(mask) != n {
		return nil, fmt.Errorf("attention mask length %d != sequence length %d", len(mask), n)
	}

	shape := ort.NewShape(1, int64(n))
	inputs := make([]ort.Value, 0, len(m.inputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()

	for _, name := range m.inputs {
		var data []int64
		switch name {
		case inputIDs:
			data = toInt64(tokenIDs)
		case attentionMask:
			data = toInt64(mask)
		case positionIDs:
			data = positions(mask)
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outShape := ort.NewShape(1, int64(n), int64(m.width))
	var out ort.Value
	var err error
	if m.logitsType == ort.TensorElementDataTypeFloat16 {
		out, err = ort.NewCustomDataTensor(outShape, make([]byte, 2*n*m.width), ort.TensorElementDataTypeFloat16)
	} else {
		out, err = ort.NewEmptyTensor[float32](outShape)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	last := make([]float32, m.rows)
	copied := min(m.rows, m.width)
	offset := (n - 1) * m.width

	switch t := out.(type) {
	case *ort.Tensor[float32]:
		copy(last, t.GetData()[offset:offset+copied])
	case *ort.CustomDataTensor:
		decodeFloat16(last[:copied], t.GetData()[2*offset:])
	default:
		return nil, fmt.Errorf("unexpected logits tensor %T", out)
	}

	// Rows added by resizing have no trained weights and are never chosen.
	for i := copied; i < m.rows; i++ {
		last[i] = float32(math.Inf(-1))
	}
	return last, nil
}

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// positions is cumsum(mask) - 1, clamped at zero for leading padding
func positions(mask []int) []int64 {
	out := make([]int64, len(mask))
	var sum int64
	for i, m := range mask {
		sum += int64(m)
		out[i] = max(sum-1, 0)
	}
	return out
}

func decodeFloat16(dst []float32, raw []byte) {
	for i := range dst {
		bits := binary.LittleEndian.Uint16(raw[2*i:])
		dst[i] = float16.Frombits(bits).Float32()
	}
}

// ResizeTokenEmbeddings sets how many token rows the logits cover
func (m *ONNXModel) ResizeTokenEmbeddings(n int) {
	if n <= 0 || n == m.rows {
		return
	}
	m.log.Debug("resizing token embeddings", "from", m.rows, "to", n, "graph_width", m.width)
	m.rows = n
}

func (m *ONNXModel) NumEmbeddings() int { return m.rows }

func (m *ONNXModel) Eval() { m.training = false }

func (m *ONNXModel) Training() bool { return m.training }

// Path is the ONNX file backing the session
func (m *ONNXModel) Path() string { return m.modelPath }

// Close destroys the ONNX session
func (m *ONNXModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
