package dto

import "encoding/json"

// UploadedFileSource is reported as image_source when the image came from the file field.
const UploadedFileSource = "uploaded_file"

// DetectedObject is a single entry of the detections list.
type DetectedObject struct {
	Class string `json:"class"`
}

// DetectionResponse is the body of a successful POST /detect.
type DetectionResponse struct {
	ImageSource     string           `json:"image_source"`
	TotalDetections int              `json:"total_detections"`
	Detections      []DetectedObject `json:"detections"`
}

// NewDetectionResponse builds a response whose total always matches the list length.
func NewDetectionResponse(source string, classes []string) DetectionResponse {
	objects := make([]DetectedObject, 0, len(classes))
	for _, class := range classes {
		objects = append(objects, DetectedObject{Class: class})
	}
	return DetectionResponse{
		ImageSource:     source,
		TotalDetections: len(objects),
		Detections:      objects,
	}
}

// MarshalJSON keeps total_detections equal to len(detections) and encodes an
// empty list as [] instead of null.
func (r DetectionResponse) MarshalJSON() ([]byte, error) {
	type Alias DetectionResponse
	alias := Alias(r)
	if alias.Detections == nil {
		alias.Detections = []DetectedObject{}
	}
	alias.TotalDetections = len(alias.Detections)
	return json.Marshal(alias)
}
