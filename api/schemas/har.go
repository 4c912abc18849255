package schemas

import (
	"net/http"
	"net/url"
	"sort"
	"time"
)

// -- HAR (HTTP Archive) Schemas --

// HARVersion is the version of the archive format written by the recorder.
const HARVersion = "1.2"

// HAR is the root object of the HTTP Archive format, which represents a log of
// HTTP requests and responses. See http://www.softwareishard.com/blog/har-1-2-spec/
// for the format.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds metadata about the creator, pages, and a list of all network entries.
type HARLog struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Pages   []Page  `json:"pages"`
	Entries []Entry `json:"entries"`
	Comment string  `json:"comment,omitempty"`
}

// Creator provides information about the application that generated the HAR file.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page groups the entries recorded between two calls to NewPage on the recorder.
type Page struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

// PageTimings contains timing information for key page load events, in
// milliseconds. -1 means not available.
type PageTimings struct {
	OnContentLoad float64 `json:"onContentLoad"`
	OnLoad        float64 `json:"onLoad"`
}

// Entry represents a single HTTP request-response pair recorded in the HAR.
type Entry struct {
	Pageref         string    `json:"pageref,omitempty"`
	StartedDateTime time.Time `json:"startedDateTime"`
	Time            float64   `json:"time"` // Total elapsed time in milliseconds.
	Request         Request   `json:"request"`
	Response        Response  `json:"response"`
	Cache           struct{}  `json:"cache"`
	Timings         Timings   `json:"timings"`
	ServerIPAddress string    `json:"serverIPAddress,omitempty"`
	Comment         string    `json:"comment,omitempty"`
}

// Duration returns the entry's total time.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.Time * float64(time.Millisecond))
}

// Request contains detailed information about a single HTTP request.
type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	QueryString []NVPair    `json:"queryString"`
	PostData    *PostData   `json:"postData,omitempty"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Response contains detailed information about an HTTP response.
type Response struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	Content     Content     `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Timings breaks an entry's time down into phases, in milliseconds. -1 marks
// a phase the recorder could not observe.
type Timings struct {
	Blocked float64 `json:"blocked"`
	DNS     float64 `json:"dns"`
	Connect float64 `json:"connect"`
	SSL     float64 `json:"ssl"`
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// NVPair represents a simple name-value pair, used for headers, query strings,
// and form parameters.
type NVPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARCookie represents an HTTP cookie as defined in the HAR specification.
type HARCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// PostData contains information about the data sent in an HTTP POST request.
type PostData struct {
	MimeType string   `json:"mimeType"`
	Text     string   `json:"text"`
	Params   []NVPair `json:"params"`
}

// Content describes the content of an HTTP response body. Size is the
// decoded size.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

// NewHAR creates an empty archive attributed to the named tool.
func NewHAR(creator, version string) *HAR {
	return &HAR{
		Log: HARLog{
			Version: HARVersion,
			Creator: Creator{
				Name:    creator,
				Version: version,
			},
			Pages:   make([]Page, 0),
			Entries: make([]Entry, 0),
		},
	}
}

// HeaderPairs converts h to name-value pairs sorted by name. Repeated headers
// yield one pair per value.
func HeaderPairs(h http.Header) []NVPair {
	pairs := make([]NVPair, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			pairs = append(pairs, NVPair{Name: name, Value: v})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

// QueryPairs converts the query of u to name-value pairs sorted by name.
func QueryPairs(u *url.URL) []NVPair {
	if u == nil {
		return []NVPair{}
	}
	values := u.Query()
	pairs := make([]NVPair, 0, len(values))
	for name, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, NVPair{Name: name, Value: v})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

// RequestCookies converts the cookies sent with r.
func RequestCookies(r *http.Request) []HARCookie {
	cookies := r.Cookies()
	out := make([]HARCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, HARCookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// ResponseCookies converts the cookies set by r.
func ResponseCookies(r *http.Response) []HARCookie {
	cookies := r.Cookies()
	out := make([]HARCookie, 0, len(cookies))
	for _, c := range cookies {
		hc := HARCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			hc.Expires = c.Expires.UTC().Format(time.RFC3339)
		}
		out = append(out, hc)
	}
	return out
}
