package recognize

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// classes is the output alphabet of the glyph classifier, index-aligned
// with the model's logits.
const classes = "0123456789.,$"

var ortInit sync.Once

func initORT() error {
	var err error
	ortInit.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		if runtime.GOOS == "windows" {
			libPath = "onnxruntime.dll"
		} else if runtime.GOOS == "darwin" {
			libPath = "libonnxruntime.dylib"
		}
		ort.SetSharedLibraryPath(libPath)
		err = ort.InitializeEnvironment()
	})
	return err
}

// ONNXRecognizer classifies segmented glyphs with a small digit/symbol
// classifier loaded through the ONNX runtime.
type ONNXRecognizer struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXRecognizer loads the classifier model from modelPath.
func NewONNXRecognizer(modelPath string) (*ONNXRecognizer, error) {
	if err := initORT(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	inputShape := ort.NewShape(1, 1, glyphSize, glyphSize)
	inputData := make([]float32, glyphSize*glyphSize)
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(len(classes)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to load glyph classifier %s: %w", modelPath, err)
	}

	return &ONNXRecognizer{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// ReadAmount segments the region into glyphs and classifies each in order.
func (r *ONNXRecognizer) ReadAmount(imageBytes []byte) (string, error) {
	glyphs, err := segment(imageBytes)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, g := range glyphs {
		copy(r.input.GetData(), g.pixels)
		if err := r.session.Run(); err != nil {
			return "", fmt.Errorf("glyph inference failed: %w", err)
		}

		logits := r.output.GetData()
		best, bestIdx := logits[0], 0
		for i, v := range logits {
			if v > best {
				best, bestIdx = v, i
			}
		}
		b.WriteByte(classes[bestIdx])
	}

	return b.String(), nil
}

// Close releases the ONNX session and tensors.
func (r *ONNXRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	if r.input != nil {
		r.input.Destroy()
		r.input = nil
	}
	if r.output != nil {
		r.output.Destroy()
		r.output = nil
	}
	return nil
}
