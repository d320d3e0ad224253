package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"digistore/internal/service"
)

type RepositoryAccessHandler struct {
	logger *logrus.Logger
	access *service.AccessService
}

func NewRepositoryAccessHandler(logger *logrus.Logger, access *service.AccessService) *RepositoryAccessHandler {
	return &RepositoryAccessHandler{logger: logger, access: access}
}

type RepositoryAccessResponse struct {
	Success        bool                `json:"success"`
	AlreadyGranted bool                `json:"alreadyGranted"`
	Repository     service.AccessGrant `json:"repository"`
}

func (h *RepositoryAccessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger)
		return
	}

	var req service.AccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}

	grant, err := h.access.Grant(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, RepositoryAccessResponse{
		Success:        true,
		AlreadyGranted: grant.AlreadyGranted,
		Repository:     *grant,
	})
}
