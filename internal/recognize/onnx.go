package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// digitCharset is the CTC alphabet of the digit recognition model:
// class 0 is the blank, classes 1-10 map to '0'-'9'.
const digitCharset = "0123456789"

// ONNXConfig configures the offline CRNN digit recognizer.
type ONNXConfig struct {
	ModelPath   string // path to the ONNX digit recognition model
	LibraryPath string // optional onnxruntime shared library override
	ImageHeight int    // model input height
	NumThreads  int    // intra-op threads (0 = runtime default)
}

// DefaultONNXConfig returns the default ONNX engine configuration.
func DefaultONNXConfig() ONNXConfig {
	path := os.Getenv("BILLSCAN_DIGIT_MODEL")
	if path == "" {
		path = "models/digit_rec.onnx"
	}
	return ONNXConfig{
		ModelPath:   path,
		ImageHeight: 48,
		NumThreads:  0,
	}
}

// ONNXEngine recognizes digit strings with a local CRNN model via ONNX
// Runtime. One session is shared across calls; inference is serialized by
// the runtime itself, Recognize only guards session lifetime.
type ONNXEngine struct {
	cfg        ONNXConfig
	mu         sync.RWMutex
	session    *onnxrt.DynamicAdvancedSession
	inputInfo  onnxrt.InputOutputInfo
	outputInfo onnxrt.InputOutputInfo
}

// NewONNXEngine loads the digit model and creates the inference session.
func NewONNXEngine(cfg ONNXConfig) (*ONNXEngine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("digit model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("digit model not found: %s", cfg.ModelPath)
	}
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = 48
	}

	if cfg.LibraryPath != "" {
		onnxrt.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d/%d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	// Adopt the model's fixed height when it declares one.
	if h := inputs[0].Dimensions[2]; h > 0 {
		cfg.ImageHeight = int(h)
	}

	sessionOptions, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session options: %v\n", err)
		}
	}()
	if cfg.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxrt.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		sessionOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEngine{
		cfg:        cfg,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
	}, nil
}

// Recognize runs the digit model on an enhanced label ROI.
func (e *ONNXEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	e.mu.RLock()
	session := e.session
	e.mu.RUnlock()
	if session == nil {
		return Result{}, errors.New("onnx session is closed")
	}

	data, w, h := normalizeNCHW(img, e.cfg.ImageHeight)
	inputTensor, err := onnxrt.NewTensor(onnxrt.NewShape(1, 3, int64(h), int64(w)), data)
	if err != nil {
		return Result{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = inputTensor.Destroy() }()

	outputs := []onnxrt.Value{nil}
	if err := session.Run([]onnxrt.Value{inputTensor}, outputs); err != nil {
		return Result{}, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	floatTensor, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return Result{}, fmt.Errorf("expected float32 output tensor, got %T", outputs[0])
	}

	text, conf := decodeDigits(floatTensor.GetData(), outputs[0].GetShape())
	return Result{Text: text, Confidence: conf * 100}, nil
}

// Close destroys the inference session.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("destroy onnx session: %w", err)
		}
		e.session = nil
	}
	return nil
}

// normalizeNCHW resizes to the model height preserving aspect ratio and
// converts to a float32 NCHW tensor with values scaled to [0,1].
func normalizeNCHW(img image.Image, targetHeight int) ([]float32, int, int) {
	b := img.Bounds()
	scale := float64(targetHeight) / float64(b.Dy())
	w := int(float64(b.Dx()) * scale)
	if w < 1 {
		w = 1
	}
	resized := imaging.Resize(img, w, targetHeight, imaging.Lanczos)

	rb := resized.Bounds()
	width, height := rb.Dx(), rb.Dy()
	data := make([]float32, 3*width*height)
	plane := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := y*width + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(bl>>8) / 255.0
		}
	}
	return data, width, height
}

// decodeDigits greedily decodes CTC output of shape [1, T, C] (or [1, C, T])
// over the digit charset, collapsing repeats and dropping blanks. The
// returned confidence is the mean probability of the kept characters, 0-1.
func decodeDigits(data []float32, shape []int64) (string, float64) {
	if len(shape) != 3 || len(data) == 0 {
		return "", 0
	}
	classes := len(digitCharset) + 1 // +1 for the CTC blank at index 0
	t, c := int(shape[1]), int(shape[2])
	timeMajor := c == classes
	if !timeMajor {
		if t != classes {
			return "", 0
		}
		t, c = c, t
	}
	if t*c > len(data) {
		return "", 0
	}

	var out []rune
	var probs []float64
	prev := -1
	for step := 0; step < t; step++ {
		var frame []float32
		if timeMajor {
			frame = data[step*c : (step+1)*c]
		} else {
			frame = make([]float32, c)
			for k := 0; k < c; k++ {
				frame[k] = data[k*t+step]
			}
		}
		idx, p := argmaxSoftmax(frame)
		if idx != 0 && idx != prev { // 0 is blank
			if idx-1 < len(digitCharset) {
				out = append(out, rune(digitCharset[idx-1]))
				probs = append(probs, p)
			}
		}
		prev = idx
	}
	if len(out) == 0 {
		return "", 0
	}
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	return string(out), sum / float64(len(probs))
}
