package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/service/imagesource"
)

// multipartMemory is how much of a multipart body is kept in memory before
// file parts spill to temporary files.
const multipartMemory = 32 << 20

// DetectRunner performs a detection for a parsed request.
type DetectRunner interface {
	Detect(ctx context.Context, req imagesource.Request) (dto.DetectionResponse, error)
}

// DetectHandler serves POST /detect. It accepts an optional image_url field and an
// optional file part, sent as multipart/form-data or as a urlencoded form.
func DetectHandler(runner DetectRunner, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > cfg.MaxUploadBytes {
			respondError(w, logger, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)

		err := r.ParseMultipartForm(multipartMemory)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if err != nil && !errors.Is(err, http.ErrNotMultipart) {
			if isBodyTooLarge(err) {
				respondError(w, logger, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			logger.Warning("Invalid form data: %v", err)
			respondError(w, logger, http.StatusBadRequest, "Invalid form data")
			return
		}

		// Tylko z treści formularza, nie z query stringa
		req := imagesource.Request{ImageURL: r.PostFormValue("image_url")}

		// Plik jest otwierany tylko gdy faktycznie przyszedł
		if r.MultipartForm != nil && len(r.MultipartForm.File["file"]) > 0 {
			file, _, err := r.FormFile("file")
			if err != nil {
				logger.Warning("Cannot open uploaded file: %v", err)
				respondError(w, logger, http.StatusBadRequest, "Invalid uploaded image")
				return
			}
			defer file.Close()
			req.File = file
		}

		result, err := runner.Detect(r.Context(), req)
		if err != nil {
			var inputErr *imagesource.InputError
			if errors.As(err, &inputErr) {
				logger.Warning("Rejected detection request: %v", describeInputError(inputErr))
				respondError(w, logger, http.StatusBadRequest, inputErr.Detail)
				return
			}
			logger.Error("Detection failed: %v", err)
			respondError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		respondJSON(w, logger, http.StatusOK, result)
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart does not always wrap the reader error
	return strings.Contains(err.Error(), "request body too large")
}

func describeInputError(err *imagesource.InputError) string {
	if err.Err != nil && err.Err.Error() != err.Detail {
		return err.Detail + " (" + err.Err.Error() + ")"
	}
	return err.Detail
}
