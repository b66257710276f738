package backend

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"llmalfr-go/alfr"
	"llmalfr-go/backend/hftok"
	"llmalfr-go/backend/vocab"
)

// Loader reads tokenizer.json and an ONNX export from a local directory
type Loader struct{}

var _ alfr.Loader = Loader{}

func (Loader) LoadTokenizer(dir string) (alfr.Tokenizer, error) {
	return hftok.Load(dir)
}

func (Loader) LoadModel(dir string, opts alfr.ModelOptions) (alfr.Model, error) {
	return LoadONNXModel(dir, opts)
}

// InitializeModel installs the process-wide default session from dir
func InitializeModel(dir string, opts ...alfr.ConfigOption) (string, error) {
	return alfr.InitializeModel(dir, Loader{}, opts...)
}

// NewSession loads a standalone session from dir
func NewSession(dir string, opts ...alfr.ConfigOption) (*alfr.Session, error) {
	cfg, err := alfr.NewConfig(dir, opts...)
	if err != nil {
		return nil, err
	}
	return alfr.NewSession(cfg, Loader{})
}

// TensorInfo describes one graph input or output
type TensorInfo struct {
	Name  string  `json:"name" yaml:"name"`
	Type  string  `json:"type" yaml:"type"`
	Shape []int64 `json:"shape" yaml:"shape"`
}

// ModelInfo summarizes a model directory without building a session
type ModelInfo struct {
	Dir        string       `json:"dir" yaml:"dir"`
	ModelFile  string       `json:"model_file" yaml:"model_file"`
	ModelType  string       `json:"model_type,omitempty" yaml:"model_type,omitempty"`
	TorchDType string       `json:"torch_dtype,omitempty" yaml:"torch_dtype,omitempty"`
	VocabSize  int          `json:"vocab_size" yaml:"vocab_size"`
	ConfigSize int          `json:"config_vocab_size" yaml:"config_vocab_size"`
	EOSToken   string       `json:"eos_token" yaml:"eos_token"`
	EOSTokenID int          `json:"eos_token_id" yaml:"eos_token_id"`
	PadToken   string       `json:"pad_token" yaml:"pad_token"`
	UnkTokenID int          `json:"unk_token_id" yaml:"unk_token_id"`
	Inputs     []TensorInfo `json:"inputs" yaml:"inputs"`
	Outputs    []TensorInfo `json:"outputs" yaml:"outputs"`
	Supported  bool         `json:"supported" yaml:"supported"`
	Problem    string       `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// Inspect reports tokenizer metadata and the ONNX graph signature of dir
func Inspect(dir, dtype string) (*ModelInfo, error) {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("model directory %q not found", dir)
	}

	v, err := vocab.Load(dir)
	if err != nil {
		return nil, err
	}
	info := &ModelInfo{
		Dir:        dir,
		ModelType:  v.ModelType,
		TorchDType: v.TorchDType,
		VocabSize:  v.Size(),
		ConfigSize: v.ModelVocabSize,
		PadToken:   v.PadToken,
		UnkTokenID: v.ResolveUnk(),
	}
	info.EOSToken, info.EOSTokenID = v.ResolveEOS()

	path, err := modelFile(dir, dtype)
	if err != nil {
		return nil, err
	}
	info.ModelFile = path

	if err := ensureEnvironment(); err != nil {
		return nil, err
	}
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	info.Inputs = tensorInfos(ins)
	info.Outputs = tensorInfos(outs)

	if _, err := readSignature(path); err != nil {
		info.Problem = err.Error()
	} else {
		info.Supported = true
	}
	return info, nil
}

func tensorInfos(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, 0, len(infos))
	for _, i := range infos {
		out = append(out, TensorInfo{
			Name:  i.Name,
			Type:  fmt.Sprint(i.DataType),
			Shape: []int64(i.Dimensions),
		})
	}
	return out
}
