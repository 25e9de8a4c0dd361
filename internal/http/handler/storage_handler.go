package handler

import (
	"net/http"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

// StorageHandler serves the storage root and backups. backupService is nil
// when backups are disabled.
type StorageHandler struct {
	rootService   *service.RootService
	backupService *service.BackupService
	logger        *zap.Logger
}

func NewStorageHandler(rootService *service.RootService, backupService *service.BackupService, logger *zap.Logger) *StorageHandler {
	return &StorageHandler{
		rootService:   rootService,
		backupService: backupService,
		logger:        logger,
	}
}

func (h *StorageHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rootService.Info(r.Context()))
}

// ChangeRoot copies or moves the data tree and switches to it
func (h *StorageHandler) ChangeRoot(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangeRootRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	info, err := h.rootService.ChangeRoot(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to change storage root")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *StorageHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		respondWithError(w, http.StatusNotFound, "Backups are not enabled")
		return
	}

	snapshots, err := h.backupService.Snapshots(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "Failed to list backups")
		return
	}
	if snapshots == nil {
		snapshots = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"snapshots": snapshots})
}

// CreateBackup takes a snapshot now
func (h *StorageHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		respondWithError(w, http.StatusNotFound, "Backups are not enabled")
		return
	}

	result, err := h.backupService.Snapshot(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "Failed to create backup")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
