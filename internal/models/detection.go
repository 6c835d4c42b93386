package models

import "image"

// Detection represents a detected object in an image.
// Confidence and Box are kept for logging; the HTTP response only carries ClassName.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float32
	Box        image.Rectangle // Współrzędne w pikselach obrazu źródłowego
}
