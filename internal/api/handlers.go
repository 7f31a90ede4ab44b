package api

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tabulardb/tabular"
)

// uploadResponse is returned after a completed ingestion.
type uploadResponse struct {
	ID             string `json:"id"`
	Processed      bool   `json:"processed"`
	TotalRows      int    `json:"totalRows"`
	TotalColumns   int    `json:"totalColumns"`
	ProcessedCount int    `json:"processedCount"`
	ErrorCount     int    `json:"errorCount"`
}

// statusResponse combines dataset status with ingestion progress.
type statusResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Processed       bool   `json:"processed"`
	TotalRows       int    `json:"totalRows"`
	TotalColumns    int    `json:"totalColumns"`
	ProcessedRows   int    `json:"processedRows"`
	ProgressPercent int    `json:"progressPercent"`
}

// handleUpload accepts a multipart spreadsheet upload, allocates a
// dataset id, and runs ingestion. Ingestion is request-scoped work: the
// response carries the final counts.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	sheet, err := tabular.ParseSheet(header.Filename, file)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	datasetID := uuid.NewString()
	result, err := s.svc.Ingest(r.Context(), datasetID, sheet)
	if err != nil {
		s.logger.Error("api: ingestion failed", "dataset", datasetID, "error", err)
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, uploadResponse{
		ID:             datasetID,
		Processed:      true,
		TotalRows:      len(sheet.Records),
		TotalColumns:   len(sheet.Header),
		ProcessedCount: result.ProcessedCount,
		ErrorCount:     result.ErrorCount,
	})
}

// handleStatus reports dataset status and pollable progress.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	ds, err := s.svc.Dataset(r.Context(), datasetID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	progress, err := s.svc.Progress(r.Context(), datasetID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		ID:              ds.ID,
		Status:          string(ds.Status),
		Processed:       ds.Processed(),
		TotalRows:       ds.RowCount,
		TotalColumns:    ds.ColumnCount,
		ProcessedRows:   progress.ProcessedRows,
		ProgressPercent: progress.ProgressPercent,
	})
}

// handleQuery executes a FilterSpec against a processed dataset.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	var spec tabular.FilterSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid query body")
		return
	}

	result, err := s.svc.Query(r.Context(), datasetID, spec)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleDelete removes a dataset, its rows and columns, and its cache
// entries.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	if err := s.svc.DeleteDataset(r.Context(), datasetID); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("api: failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps a core error to its HTTP status.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api: internal error", "error", err)
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}
