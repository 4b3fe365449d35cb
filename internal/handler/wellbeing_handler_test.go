package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-wellbeing-api/internal/dto"
	"github.com/noah-isme/sma-wellbeing-api/internal/middleware"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
)

type analyticsServiceMock struct {
	report *dto.WellbeingReport
	cached bool
	err    error
	filter models.WellbeingFilter
}

func (m *analyticsServiceMock) GetAnalytics(_ context.Context, filter models.WellbeingFilter) (*dto.WellbeingReport, bool, error) {
	m.filter = filter
	if m.err != nil {
		return nil, false, m.err
	}
	return m.report, m.cached, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestWellbeingHandlerAnalytics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &analyticsServiceMock{
		report: &dto.WellbeingReport{AverageWellbeingScore: 7.5, TotalStudents: 12, TimeRange: 30},
		cached: true,
	}
	handler := NewWellbeingHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/wellbeing/analytics?timeRange=30d&grade=5", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", SchoolID: "school-1", Role: models.RoleAdmin})

	handler.Analytics(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "school-1", mockSvc.filter.SchoolID)
	require.Equal(t, models.TimeRange30d, mockSvc.filter.TimeRange)
	require.Equal(t, "5", mockSvc.filter.Grade)

	var body struct {
		Success   bool                 `json:"success"`
		Analytics *dto.WellbeingReport `json:"analytics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.NotNil(t, body.Analytics)
	require.Equal(t, 12, body.Analytics.TotalStudents)
}

func TestWellbeingHandlerAnalyticsRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWellbeingHandler(&analyticsServiceMock{})

	c, w := newGinContext(http.MethodGet, "/wellbeing/analytics", nil)
	handler.Analytics(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWellbeingHandlerAnalyticsRejectsNonAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWellbeingHandler(&analyticsServiceMock{})

	c, w := newGinContext(http.MethodGet, "/wellbeing/analytics", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "parent", SchoolID: "school-1", Role: models.RoleParent})

	handler.Analytics(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWellbeingHandlerAnalyticsRejectsBadTimeRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewWellbeingHandler(&analyticsServiceMock{})

	c, w := newGinContext(http.MethodGet, "/wellbeing/analytics?timeRange=14d", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", SchoolID: "school-1", Role: models.RoleAdmin})

	handler.Analytics(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWellbeingHandlerAnalyticsDefaultsWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &analyticsServiceMock{report: &dto.WellbeingReport{}}
	handler := NewWellbeingHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/wellbeing/analytics", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", SchoolID: "school-1", Role: models.RoleSuperAdmin})

	handler.Analytics(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.TimeRange7d, mockSvc.filter.TimeRange)
	require.Equal(t, "all", mockSvc.filter.Grade)
}
