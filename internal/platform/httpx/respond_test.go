package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("report 7: %w", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrPayment, http.StatusPaymentRequired},
		{ErrUnavailable, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err, "try again")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("dial tcp 10.0.0.1: refused"), "try again")

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "try again", problem.Detail)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestValidationProblemListsFields(t *testing.T) {
	type form struct {
		Viewer string `validate:"required"`
	}
	err := validator.New().Struct(form{})
	rec := httptest.NewRecorder()
	ValidationProblem(rec, err)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, map[string]string{"viewer": "required"}, problem.Fields)
}

func TestDecodeJSON(t *testing.T) {
	var target map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"n": 3}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	assert.Equal(t, json.Number("3"), target["n"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), ErrValidation)
}
