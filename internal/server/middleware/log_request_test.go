package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	level  string
	fields map[string]any
}

type recordLogger struct {
	nopLogger
	lines []logLine
}

func (l *recordLogger) record(level string, kv []any) {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	l.lines = append(l.lines, logLine{level: level, fields: fields})
}

func (l *recordLogger) Infow(_ string, kv ...any)  { l.record("info", kv) }
func (l *recordLogger) Warnw(_ string, kv ...any)  { l.record("warn", kv) }
func (l *recordLogger) Errorw(_ string, kv ...any) { l.record("error", kv) }

func newLoggedEcho(logger *recordLogger) *echo.Echo {
	e := echo.New()
	e.Use(RequestID())
	e.Use(LogRequest(LogRequestConfig{Logger: logger}))
	e.POST("/channels/:id/messages", func(c echo.Context) error {
		var body map[string]any
		if err := c.Bind(&body); err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, body)
	})
	e.GET("/fail", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "down")
	})
	e.GET("/ws", func(c echo.Context) error {
		return c.NoContent(http.StatusBadRequest)
	})
	return e
}

func TestLogRequestBodies(t *testing.T) {
	logger := &recordLogger{}
	e := newLoggedEcho(logger)

	req := httptest.NewRequest(http.MethodPost, "/channels/c1/messages", strings.NewReader(`{"content":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"content":"hi"}`, rec.Body.String())

	require.Len(t, logger.lines, 1)
	line := logger.lines[0]
	assert.Equal(t, "info", line.level)
	assert.Equal(t, "/channels/:id/messages", line.fields["route"])
	assert.Equal(t, rec.Header().Get(XRequestID), line.fields["request_id"])
	assert.Equal(t, json.RawMessage(`{"content":"hi"}`), line.fields["request_body"])
	assert.NotNil(t, line.fields["response_body"])
}

func TestLogRequestLevels(t *testing.T) {
	logger := &recordLogger{}
	e := newLoggedEcho(logger)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Len(t, logger.lines, 2)
	assert.Equal(t, "error", logger.lines[0].level)
	assert.Contains(t, logger.lines[0].fields["error"], "down")
	assert.Equal(t, "warn", logger.lines[1].level)
}

func TestLogRequestRedactsToken(t *testing.T) {
	logger := &recordLogger{}
	e := newLoggedEcho(logger)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=secret-jwt&since=1", nil)
	req.Header.Set(echo.HeaderUpgrade, "websocket")
	req.Header.Set(echo.HeaderConnection, "Upgrade")
	e.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, logger.lines, 1)
	uri := logger.lines[0].fields["uri"].(string)
	assert.NotContains(t, uri, "secret-jwt")
	assert.Contains(t, uri, "since=1")
	assert.Equal(t, true, logger.lines[0].fields["websocket"])
	assert.NotContains(t, logger.lines[0].fields, "response_body")
}

func TestLoggableBody(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"a":1}`), loggableBody([]byte(`{"a":1}`)))
	assert.Equal(t, "not json", loggableBody([]byte("not json")))

	long := loggableBody([]byte(strings.Repeat("x", maxLoggedBody+10))).(string)
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
	assert.Len(t, long, maxLoggedBody+len("...(truncated)"))
}

func TestRedactURI(t *testing.T) {
	u, err := url.Parse("/ws?access_token=a&token=b")
	require.NoError(t, err)
	assert.Equal(t, "/ws?access_token=REDACTED&token=REDACTED", redactURI(u))

	u, err = url.Parse("/api/v1/channels?limit=5")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/channels?limit=5", redactURI(u))
}
