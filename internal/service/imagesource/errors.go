package imagesource

import "errors"

// InputError is a failure caused by caller-supplied data. Detail is safe to show
// to the caller as-is.
type InputError struct {
	Detail string
	Err    error
}

func (e *InputError) Error() string {
	return e.Detail
}

func (e *InputError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoImageSource is returned when neither a usable URL nor a file was supplied.
	ErrNoImageSource = &InputError{Detail: "Provide either a valid image_url or an image file"}

	// ErrDecode is returned when bytes cannot be decoded into a color image.
	ErrDecode = errors.New("image decoding failed")

	// ErrEgressDenied is returned when a URL points at a destination the fetch policy forbids.
	ErrEgressDenied = errors.New("destination not allowed")
)
