package ai

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// initONNXRuntime loads the ONNX Runtime shared library once per process.
func initONNXRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment (%s): %w", libPath, err)
	}
	return nil
}

func destroyONNXRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// onnxEngine runs the network with ONNX Runtime using preallocated tensors.
type onnxEngine struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int
}

func newONNXEngine(modelPath string, inputSize, threads int) (*onnxEngine, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model inputs/outputs: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))
	}

	inputShape := inputs[0].Dimensions
	if err := checkStaticShape(inputShape); err != nil {
		return nil, fmt.Errorf("input %q: %w", inputs[0].Name, err)
	}
	if len(inputShape) != 4 || inputShape[2] != int64(inputSize) || inputShape[3] != int64(inputSize) {
		return nil, fmt.Errorf("input %q has shape %v, expected [1 3 %d %d]", inputs[0].Name, inputShape, inputSize, inputSize)
	}
	outputShape := outputs[0].Dimensions
	if err := checkStaticShape(outputShape); err != nil {
		return nil, fmt.Errorf("output %q: %w", outputs[0].Name, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	shape := make([]int, len(outputShape))
	for i, d := range outputShape {
		shape[i] = int(d)
	}

	return &onnxEngine{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		shape:   shape,
	}, nil
}

func (e *onnxEngine) Forward(blob gocv.Mat) (RawOutput, error) {
	data, err := blob.DataPtrFloat32()
	if err != nil {
		return RawOutput{}, fmt.Errorf("read input blob: %w", err)
	}

	dst := e.input.GetData()
	if len(data) != len(dst) {
		return RawOutput{}, fmt.Errorf("input blob has %d values, tensor expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := e.session.Run(); err != nil {
		return RawOutput{}, fmt.Errorf("model inference: %w", err)
	}

	result := e.output.GetData()
	out := RawOutput{
		Data:  make([]float32, len(result)),
		Shape: append([]int(nil), e.shape...),
	}
	copy(out.Data, result)
	return out, nil
}

func (e *onnxEngine) Close() error {
	return multierr.Combine(
		e.session.Destroy(),
		e.input.Destroy(),
		e.output.Destroy(),
	)
}

func checkStaticShape(shape ort.Shape) error {
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("dynamic shape %v is not supported, export the model with a fixed image size", shape)
		}
	}
	return nil
}
