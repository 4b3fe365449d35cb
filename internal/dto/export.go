package dto

import "github.com/noah-isme/sma-wellbeing-api/internal/models"

// ExportRequest asks for a class-rollup export in the requested format.
type ExportRequest struct {
	TimeRange string               `json:"timeRange"`
	Grade     string               `json:"grade"`
	Format    models.ExportFormat  `json:"format" validate:"required"`
}

// ExportJobResponse acknowledges a queued export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse reports job progress and the download URL once ready.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
