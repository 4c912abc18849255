package schemas_test

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-ui/api/schemas"
)

func TestNewHAR(t *testing.T) {
	t.Parallel()
	har := schemas.NewHAR("scalpel-ui", "1.0.0")

	assert.Equal(t, schemas.HARVersion, har.Log.Version)
	assert.Equal(t, schemas.Creator{Name: "scalpel-ui", Version: "1.0.0"}, har.Log.Creator)
	// Empty slices, not nil, so the archive serializes as [] rather than null.
	assert.NotNil(t, har.Log.Pages)
	assert.NotNil(t, har.Log.Entries)
}

func TestEntryDuration(t *testing.T) {
	t.Parallel()
	e := schemas.Entry{StartedDateTime: getTestTime(t), Time: 1250.5}
	assert.Equal(t, 1250*time.Millisecond+500*time.Microsecond, e.Duration())
}

func TestHeaderPairs(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Add("X-Trace", "b")
	h.Add("Accept", "text/html")
	h.Add("X-Trace", "a")

	pairs := schemas.HeaderPairs(h)
	assert.Equal(t, []schemas.NVPair{
		{Name: "Accept", Value: "text/html"},
		{Name: "X-Trace", Value: "b"},
		{Name: "X-Trace", Value: "a"},
	}, pairs)
}

func TestQueryPairs(t *testing.T) {
	t.Parallel()
	u, err := url.Parse("https://store.example.test/search?q=go&page=2&q=rust")
	require.NoError(t, err)

	assert.Equal(t, []schemas.NVPair{
		{Name: "page", Value: "2"},
		{Name: "q", Value: "go"},
		{Name: "q", Value: "rust"},
	}, schemas.QueryPairs(u))
	assert.Empty(t, schemas.QueryPairs(nil))
}

func TestCookies(t *testing.T) {
	t.Parallel()
	req, err := http.NewRequest(http.MethodGet, "https://store.example.test/", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})

	assert.Equal(t, []schemas.HARCookie{{Name: "session", Value: "abc"}}, schemas.RequestCookies(req))

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "cart=42; Path=/; Domain=store.example.test; Expires=Sun, 26 Oct 2025 10:00:00 GMT; HttpOnly; Secure")
	cookies := schemas.ResponseCookies(resp)
	require.Len(t, cookies, 1)
	assert.Equal(t, schemas.HARCookie{
		Name:     "cart",
		Value:    "42",
		Path:     "/",
		Domain:   "store.example.test",
		Expires:  "2025-10-26T10:00:00Z",
		HTTPOnly: true,
		Secure:   true,
	}, cookies[0])
}

// TestHARJSONTags pins the field names readers of the archive depend on.
func TestHARJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Entry",
			structRef: schemas.Entry{},
			expectedTags: map[string]string{
				"Pageref":         "pageref",
				"StartedDateTime": "startedDateTime",
				"Time":            "time",
				"ServerIPAddress": "serverIPAddress",
			},
		},
		{
			name:      "Response",
			structRef: schemas.Response{},
			expectedTags: map[string]string{
				"StatusText":  "statusText",
				"HTTPVersion": "httpVersion",
				"RedirectURL": "redirectURL",
				"HeadersSize": "headersSize",
				"BodySize":    "bodySize",
			},
		},
		{
			name:      "HARCookie",
			structRef: schemas.HARCookie{},
			expectedTags: map[string]string{
				"HTTPOnly": "httpOnly",
				"Secure":   "secure",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tc.structRef)
			for field, want := range tc.expectedTags {
				f, ok := typ.FieldByName(field)
				require.True(t, ok, "field %s missing from %s", field, tc.name)
				tag := strings.Split(f.Tag.Get("json"), ",")[0]
				assert.Equal(t, want, tag, "json tag of %s.%s", tc.name, field)
			}
		})
	}
}
