package ai

import "gocv.io/x/gocv"

// Engine runs a forward pass of the detection network. Implementations are not
// safe for concurrent use; DetectorService hands them out through a pool.
type Engine interface {
	Forward(blob gocv.Mat) (RawOutput, error)
	Close() error
}
