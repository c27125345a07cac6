package logutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	h := Middleware(base, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := GetOrDefault(r.Context())
		log.Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	dec := json.NewDecoder(&buf)
	var inside, access map[string]interface{}
	require.NoError(t, dec.Decode(&inside))
	require.NoError(t, dec.Decode(&access))
	assert.Equal(t, "inside", inside["message"])
	assert.Equal(t, id, inside["request.id"])
	assert.Equal(t, "/api/posts", access["path"])
	assert.Equal(t, float64(http.StatusTeapot), access["status"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	given := uuid.NewString()
	req.Header.Set(RequestIDHeader, given)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, given, rec.Header().Get(RequestIDHeader))
}

func TestSetup(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	}()
	_, err := Setup("nope", false)
	assert.Error(t, err)
	_, err = Setup("warn", true)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
