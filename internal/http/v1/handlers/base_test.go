package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	c.Request = httptest.NewRequest(method, target, reader)
	return c, rec
}

func TestDecodeBody(t *testing.T) {
	h := NewBaseHandler()
	c, _ := testContext(http.MethodPost, "/", `{"name": "x", "count": 3, "ratio": 1.5}`)

	content, ok := h.DecodeBody(c)
	require.True(t, ok)
	assert.Equal(t, "x", content["name"])

	// Numbers stay json.Number so integers and floats remain distinct.
	count, isNumber := content["count"].(json.Number)
	require.True(t, isNumber)
	n, err := count.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ratio := content["ratio"].(json.Number)
	_, err = ratio.Int64()
	assert.Error(t, err)
}

func TestDecodeBodyRejectsNonObject(t *testing.T) {
	h := NewBaseHandler()
	for _, body := range []string{"", "not json", `["array"]`, `"string"`} {
		c, _ := testContext(http.MethodPost, "/", body)
		_, ok := h.DecodeBody(c)
		assert.False(t, ok, "body %q", body)
		assert.True(t, c.IsAborted(), "body %q", body)
		require.NotEmpty(t, c.Errors, "body %q", body)
	}
}

func TestParseIntQuery(t *testing.T) {
	h := NewBaseHandler()

	c, _ := testContext(http.MethodGet, "/?limit=25", "")
	assert.Equal(t, 25, h.ParseIntQuery(c, "limit", 50))

	c, _ = testContext(http.MethodGet, "/", "")
	assert.Equal(t, 50, h.ParseIntQuery(c, "limit", 50))

	c, _ = testContext(http.MethodGet, "/?limit=lots", "")
	assert.Equal(t, 50, h.ParseIntQuery(c, "limit", 50))
}

func TestParseIntList(t *testing.T) {
	h := NewBaseHandler()

	c, _ := testContext(http.MethodGet, "/?user_id=1&user_id=2&user_id=x&user_id=3", "")
	assert.Equal(t, []int64{1, 2, 3}, h.ParseIntList(c, "user_id"))

	c, _ = testContext(http.MethodGet, "/", "")
	assert.Empty(t, h.ParseIntList(c, "user_id"))
}

func TestCreated(t *testing.T) {
	h := NewBaseHandler()
	c, rec := testContext(http.MethodPost, "/api/v1/contests", "")

	h.Created(c, "/api/v1/contests/7", "7")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/v1/contests/7", rec.Header().Get("Location"))
	assert.JSONEq(t, `{"_ref": "7"}`, rec.Body.String())
}

func TestNoContent(t *testing.T) {
	h := NewBaseHandler()
	c, rec := testContext(http.MethodDelete, "/api/v1/contests/7", "")

	h.NoContent(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
