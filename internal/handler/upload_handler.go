package handler

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

type UploadHandler struct {
	logger  *logrus.Logger
	uploads *service.UploadService
}

func NewUploadHandler(logger *logrus.Logger, uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{logger: logger, uploads: uploads}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(service.MaxUploadSize); err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: file too large or malformed form", service.ErrValidation), true)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("%w: no file uploaded", service.ErrValidation), true)
		return
	}
	defer file.Close()

	url, err := h.uploads.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"success": true, "url": url})
}
