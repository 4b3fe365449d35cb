package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-wellbeing-api/internal/dto"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
	"github.com/noah-isme/sma-wellbeing-api/internal/repository"
	appErrors "github.com/noah-isme/sma-wellbeing-api/pkg/errors"
	"github.com/noah-isme/sma-wellbeing-api/pkg/jobs"
	"github.com/noah-isme/sma-wellbeing-api/pkg/storage"
)

type memoryJobStore struct {
	jobs map[string]*models.ExportJob
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]*models.ExportJob{}}
}

func (m *memoryJobStore) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	job.CreatedAt = time.Now().UTC()
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memoryJobStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (m *memoryJobStore) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *memoryJobStore) ListQueued(_ context.Context, _ int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *memoryJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ExportJob, error) {
	var finished []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type recordingDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, job)
	return nil
}

type stubGenerator struct {
	result *ExportResult
	err    error
}

func (g *stubGenerator) Generate(context.Context, *models.ExportJob) (*ExportResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func newJobServiceFixture(t *testing.T) (*ExportJobService, *memoryJobStore, *recordingDispatcher, *ExportService) {
	t.Helper()
	store := newMemoryJobStore()
	dispatcher := &recordingDispatcher{}
	fileStore, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	exporter := NewExportService(&fakeAnalyticsProvider{report: sampleReport()}, fileStore, signer, ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
	svc := NewExportJobService(store, dispatcher, exporter, nil, ExportJobServiceConfig{ResultTTL: time.Hour, MaxRetries: 3})
	return svc, store, dispatcher, exporter
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, store, dispatcher, _ := newJobServiceFixture(t)

	resp, err := svc.CreateJob(context.Background(), dto.ExportRequest{
		TimeRange: "7d",
		Format:    models.ExportFormatCSV,
	}, "school-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, resp.ID, dispatcher.enqueued[0].ID)
	assert.Equal(t, "wellbeing-export", dispatcher.enqueued[0].Kind)

	stored := store.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "school-1", stored.SchoolID)
	assert.Equal(t, "user-1", stored.CreatedBy)
	assert.Equal(t, "all", stored.Params.Grade)
}

func TestExportJobServiceCreateJobRejectsBadInput(t *testing.T) {
	svc, _, _, _ := newJobServiceFixture(t)

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{TimeRange: "14d", Format: models.ExportFormatCSV}, "school-1", "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.CreateJob(context.Background(), dto.ExportRequest{TimeRange: "7d", Format: "xlsx"}, "school-1", "user-1")
	require.Error(t, err)
}

func TestExportJobServiceCreateJobMarksFailedOnEnqueueError(t *testing.T) {
	svc, store, dispatcher, _ := newJobServiceFixture(t)
	dispatcher.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), dto.ExportRequest{TimeRange: "7d", Format: models.ExportFormatCSV}, "school-1", "user-1")
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		assert.Equal(t, 100, job.Progress)
	}
}

func TestExportJobServiceGetStatusScopesBySchool(t *testing.T) {
	svc, store, _, _ := newJobServiceFixture(t)
	job := &models.ExportJob{SchoolID: "school-1", Status: models.ExportStatusProcessing, Progress: 10}
	require.NoError(t, store.Create(context.Background(), job))

	resp, err := svc.GetStatus(context.Background(), job.ID, "school-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusProcessing, resp.Status)

	_, err = svc.GetStatus(context.Background(), job.ID, "school-2")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetStatus(context.Background(), "missing", "school-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportWorkerLifecycle(t *testing.T) {
	svc, store, _, exporter := newJobServiceFixture(t)

	resp, err := svc.CreateJob(context.Background(), dto.ExportRequest{
		TimeRange: "7d",
		Format:    models.ExportFormatCSV,
	}, "school-1", "user-1")
	require.NoError(t, err)

	worker := NewExportWorker(store, exporter, 3, nil)
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: resp.ID, Kind: "wellbeing-export"}))

	job := store.jobs[resp.ID]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	require.NotNil(t, job.FinishedAt)

	download, err := svc.ResolveDownload(context.Background(), extractToken(*job.ResultURL))
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, models.ExportFormatCSV, download.Format)

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Class,Grade,Students")
}

func TestExportWorkerRequeuesUntilRetriesExhausted(t *testing.T) {
	_, store, _, _ := newJobServiceFixture(t)
	job := &models.ExportJob{SchoolID: "school-1", Params: models.ExportJobParams{TimeRange: models.TimeRange7d, Format: models.ExportFormatCSV}}
	require.NoError(t, store.Create(context.Background(), job))

	worker := NewExportWorker(store, &stubGenerator{err: errors.New("render failed")}, 3, nil)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1}))
	assert.Equal(t, models.ExportStatusQueued, store.jobs[job.ID].Status)
	assert.Equal(t, 0, store.jobs[job.ID].Progress)
	require.NotNil(t, store.jobs[job.ID].ErrorMessage)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 3}))
	assert.Equal(t, models.ExportStatusFailed, store.jobs[job.ID].Status)
	assert.Equal(t, 100, store.jobs[job.ID].Progress)
	require.NotNil(t, store.jobs[job.ID].FinishedAt)
}

func TestExportJobServiceResolveDownloadGuards(t *testing.T) {
	svc, store, _, exporter := newJobServiceFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "garbage-token")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	// A valid token whose job has not finished yet is rejected.
	job := &models.ExportJob{SchoolID: "school-1", Status: models.ExportStatusProcessing, Params: models.ExportJobParams{TimeRange: models.TimeRange7d, Format: models.ExportFormatCSV}}
	require.NoError(t, store.Create(context.Background(), job))
	result, err := exporter.Generate(context.Background(), job)
	require.NoError(t, err)
	url := result.URL
	require.NoError(t, store.Update(context.Background(), job.ID, repository.UpdateExportJobParams{ResultURL: &url}))

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export not ready")
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	svc, store, dispatcher, _ := newJobServiceFixture(t)
	require.NoError(t, store.Create(context.Background(), &models.ExportJob{SchoolID: "school-1"}))
	require.NoError(t, store.Create(context.Background(), &models.ExportJob{SchoolID: "school-1", Status: models.ExportStatusFinished}))

	svc.RecoverPendingJobs(context.Background())

	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, "wellbeing-export", dispatcher.enqueued[0].Kind)
}
