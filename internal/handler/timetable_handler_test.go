package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type timetableServiceMock struct {
	captured    dto.GenerateTimetableRequest
	query       dto.TimetableQuery
	generateErr error
	getErr      error
	publishErr  error
	deleteErr   error
	cacheHit    bool
	deletedID   string
}

func (m *timetableServiceMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.captured = req
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return &dto.GenerateTimetableResponse{
		Timetable: &models.Timetable{ID: "tt-1", Semester: "5", Status: models.TimetableStatusDraft},
		Warnings: []scheduler.Warning{{
			Code:      appErrors.ErrUnschedulableSubject.Code,
			SubjectID: "sub-b",
			Reason:    scheduler.ReasonNoQualifiedFaculty,
		}},
	}, nil
}

func (m *timetableServiceMock) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	m.query = query
	return []models.Timetable{{ID: "tt-1"}, {ID: "tt-2"}}, nil
}

func (m *timetableServiceMock) Get(ctx context.Context, id string) (*models.Timetable, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	return &models.Timetable{ID: id}, m.cacheHit, nil
}

func (m *timetableServiceMock) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return &models.Timetable{ID: id, Status: models.TimetableStatusPublished}, nil
}

func (m *timetableServiceMock) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return m.deleteErr
}

func newTimetableRouter(svc timetableService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTimetableHandler(svc)
	router := gin.New()
	router.Use(internalmiddleware.WithResponseMeta())
	router.POST("/timetables/generate", h.Generate)
	router.GET("/timetables", h.List)
	router.GET("/timetables/:id", h.Get)
	router.POST("/timetables/:id/publish", h.Publish)
	router.DELETE("/timetables/:id", h.Delete)
	return router
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTimetableGenerateSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &timetableServiceMock{}
	handler := &TimetableHandler{service: mockSvc}
	req, _ := http.NewRequest(http.MethodPost, "/timetables/generate", bytes.NewReader([]byte(`{"semester":5,"ownerId":"owner-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 5, mockSvc.captured.Semester)
	require.Equal(t, "owner-1", mockSvc.captured.OwnerID)
	body := decodeEnvelope(t, w)
	meta := body["meta"].(map[string]interface{})
	assert.EqualValues(t, 1, meta["warnings"])
}

func TestTimetableGenerateMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{service: &timetableServiceMock{}}
	req, _ := http.NewRequest(http.MethodPost, "/timetables/generate", bytes.NewReader([]byte(`{"semester":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableGenerateMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no batch", appErrors.Clone(appErrors.ErrNoTargetBatch, "no student batch found for semester 9"), http.StatusNotFound, "NO_TARGET_BATCH"},
		{"missing input", appErrors.ErrInputMissing, http.StatusUnprocessableEntity, "INPUT_MISSING"},
		{"empty result", appErrors.ErrEmptyResult, http.StatusUnprocessableEntity, "EMPTY_RESULT"},
		{"in progress", appErrors.ErrGenerationInProgress, http.StatusConflict, "GENERATION_IN_PROGRESS"},
		{"persistence", appErrors.ErrPersistenceFailure, http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTimetableRouter(&timetableServiceMock{generateErr: tc.err})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/timetables/generate", bytes.NewReader([]byte(`{"semester":9}`)))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			body := decodeEnvelope(t, w)
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tc.code, errBody["code"])
		})
	}
}

func TestTimetableListBindsSemester(t *testing.T) {
	mockSvc := &timetableServiceMock{}
	router := newTimetableRouter(mockSvc)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timetables?semester=3", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, mockSvc.query.Semester)
	var body response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestTimetableListRejectsBadSemester(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timetables?semester=abc", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableGetReportsCacheHit(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{cacheHit: true})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timetables/tt-9", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "tt-9", body["data"].(map[string]interface{})["id"])
	assert.Equal(t, true, body["meta"].(map[string]interface{})["cache_hit"])
}

func TestTimetableGetNotFound(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "timetable not found")})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timetables/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetablePublish(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/timetables/tt-1/publish", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "published", body["data"].(map[string]interface{})["status"])
}

func TestTimetablePublishConflict(t *testing.T) {
	router := newTimetableRouter(&timetableServiceMock{publishErr: appErrors.Clone(appErrors.ErrConflict, "timetable is already published")})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/timetables/tt-1/publish", nil))

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestTimetableDelete(t *testing.T) {
	mockSvc := &timetableServiceMock{}
	router := newTimetableRouter(mockSvc)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/timetables/tt-1", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "tt-1", mockSvc.deletedID)
}
