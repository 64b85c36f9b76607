package apierr_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"imagegateway/internal/apierr"
)

func TestStatus_MapsEveryKind(t *testing.T) {
	cases := map[apierr.Kind]int{
		apierr.KindAuthMissing: http.StatusUnauthorized,
		apierr.KindAuthInvalid: http.StatusUnauthorized,
		apierr.KindForbidden:   http.StatusForbidden,
		apierr.KindBadRequest:  http.StatusBadRequest,
		apierr.KindNotFound:    http.StatusNotFound,
		apierr.KindConflict:    http.StatusConflict,
		apierr.KindInternal:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, apierr.Status(kind), "kind %s", kind)
	}
}

func TestStatus_UnknownKindFallsBackTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, apierr.Status(apierr.Kind("something_unmapped")))
}

func TestNew_SetsKindAndMessage(t *testing.T) {
	err := apierr.New(apierr.KindForbidden, "nope")
	assert.Equal(t, apierr.KindForbidden, err.Kind)
	assert.Equal(t, "nope", err.Error())
}

func TestAbort_WritesEnvelopeAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	apierr.Abort(c, apierr.KindNotFound, "user not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"user not found"}`, w.Body.String())
	assert.True(t, c.IsAborted())
}
