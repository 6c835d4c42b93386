package imagesource

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// DecodeImage decodes an encoded image into an 8-bit, 3-channel BGR Mat. OpenCV
// handles the common formats; anything it rejects (GIF on most builds, some TIFF
// variants) goes through the pure Go decoders. On error the returned Mat is zero
// and must not be used.
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: no data", ErrDecode)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil {
		if !mat.Empty() {
			return mat, nil
		}
		mat.Close()
	}

	return decodeFallback(data)
}

func decodeFallback(data []byte) (gocv.Mat, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// ImageToMatRGB zapisuje piksele w kolejności BGR
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, ErrDecode
	}
	return mat, nil
}
