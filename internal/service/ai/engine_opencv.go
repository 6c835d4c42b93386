package ai

import (
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

// openCVEngine runs the network with the OpenCV DNN module.
type openCVEngine struct {
	net gocv.Net
}

// newOpenCVEngine loads an ONNX network and sets backend/target preferences.
func newOpenCVEngine(modelPath string) (*openCVEngine, error) {
	info, err := os.Stat(modelPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load network from %s: %w", modelPath, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("failed to load network from %s: file is empty", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	// Przy wyjątku OpenCV dostajemy pusty uchwyt
	if net == (gocv.Net{}) {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &openCVEngine{net: net}, nil
}

func (e *openCVEngine) Forward(blob gocv.Mat) (RawOutput, error) {
	e.net.SetInput(blob, "")

	output := e.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return RawOutput{}, fmt.Errorf("network returned an empty output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return RawOutput{}, fmt.Errorf("read network output: %w", err)
	}

	// Dane Mat są zwalniane razem z output, więc kopiujemy
	out := RawOutput{
		Data:  make([]float32, len(data)),
		Shape: output.Size(),
	}
	copy(out.Data, data)
	return out, nil
}

func (e *openCVEngine) Close() error {
	return e.net.Close()
}
