package ai

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// padColor is the grey used by YOLO letterboxing.
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// prepareBlob letterboxes a BGR image into a size x size square and converts it into
// a normalized NCHW RGB float blob. The caller owns the returned Mat; on error it
// is zero and must not be used.
func prepareBlob(img gocv.Mat, size int) (gocv.Mat, letterbox, error) {
	if img.Empty() {
		return gocv.Mat{}, letterbox{}, errors.New("image is empty")
	}

	lb := newLetterbox(img.Cols(), img.Rows(), size)

	resized := gocv.NewMat()
	defer resized.Close()
	if lb.newW != img.Cols() || lb.newH != img.Rows() {
		gocv.Resize(img, &resized, image.Pt(lb.newW, lb.newH), 0, 0, gocv.InterpolationLinear)
	} else {
		img.CopyTo(&resized)
	}

	padded := gocv.NewMat()
	defer padded.Close()
	top, bottom, left, right := lb.borders()
	gocv.CopyMakeBorder(resized, &padded, top, bottom, left, right, gocv.BorderConstant, padColor)
	if padded.Empty() || padded.Cols() != size || padded.Rows() != size {
		return gocv.Mat{}, letterbox{}, errors.New("letterbox produced an unexpected frame")
	}

	// Skala 1/255, zamiana BGR -> RGB, bez przycinania
	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	return blob, lb, nil
}

// blankFrame returns a grey square used to warm up engines at startup.
func blankFrame(size int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), size, size, gocv.MatTypeCV8UC3)
}
