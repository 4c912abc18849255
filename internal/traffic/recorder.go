// Package traffic records the browser's HTTP traffic through a local proxy and
// analyses the resulting HTTP archive.
//
// The recorder is an elazarl/goproxy server. Plain HTTP is always recorded.
// HTTPS is tunnelled untouched unless a CA is supplied with WithCA, in which
// case CONNECT requests are intercepted and recorded as well.
package traffic

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/api/schemas"
	"github.com/xkilldash9x/scalpel-ui/internal/config"
)

const (
	// CreatorName is written into every archive.
	CreatorName = "scalpel-ui"
	// maxCapturedText bounds the body text stored in an entry.
	maxCapturedText = 2 << 20
)

// Version is written into every archive as the creator version. The binary
// overrides it at link time.
var Version = "dev"

// Recorder is a recording HTTP proxy.
type Recorder struct {
	cfg   config.TrafficConfig
	proxy *goproxy.ProxyHttpServer
	log   *zap.Logger

	serverMu sync.Mutex
	server   *http.Server
	addr     string

	mu   sync.Mutex
	har  *schemas.HAR
	page string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCA enables HTTPS interception, signing leaf certificates with ca. The
// browser must trust ca or ignore certificate errors.
func WithCA(ca tls.Certificate) Option {
	return func(r *Recorder) {
		mitm := &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(&ca)}
		r.proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			return mitm, host
		}))
	}
}

// pending carries request-side data from the request hook to the response hook.
type pending struct {
	started time.Time
	request schemas.Request
}

// NewRecorder builds a recorder. It does not listen until Start is called.
func NewRecorder(cfg config.TrafficConfig, logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("traffic")

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = zap.NewStdLog(log.Named("goproxy"))
	proxy.Tr = &http.Transport{
		// Test environments often sit behind self-signed certificates.
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Bodies are recorded as sent on the wire and decoded separately.
		DisableCompression: true,
	}

	r := &Recorder{
		cfg:   cfg,
		proxy: proxy,
		log:   log,
		har:   schemas.NewHAR(CreatorName, Version),
	}
	for _, opt := range opts {
		opt(r)
	}

	proxy.OnRequest().DoFunc(r.handleRequest)
	proxy.OnResponse().DoFunc(r.handleResponse)
	return r
}

// Start listens on the configured address and serves in the background.
func (r *Recorder) Start(ctx context.Context) error {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	if r.server != nil {
		return errors.New("recorder already started")
	}

	addr := r.cfg.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	r.server = &http.Server{Handler: r.proxy, ReadHeaderTimeout: 30 * time.Second}
	r.addr = ln.Addr().String()
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("Proxy server stopped unexpectedly.", zap.Error(err))
		}
	}(r.server)

	r.log.Info("Recording proxy started.", zap.String("addr", r.addr))
	return nil
}

// URL returns the proxy URL to hand to the browser, or "" before Start.
func (r *Recorder) URL() string {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	if r.addr == "" {
		return ""
	}
	return "http://" + r.addr
}

// Stop shuts the proxy down and drops idle upstream connections.
func (r *Recorder) Stop(ctx context.Context) error {
	r.serverMu.Lock()
	srv := r.server
	r.server = nil
	r.addr = ""
	r.serverMu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	r.proxy.Tr.CloseIdleConnections()
	if err != nil {
		return fmt.Errorf("failed to stop proxy: %w", err)
	}
	r.log.Info("Recording proxy stopped.")
	return nil
}

// NewHAR discards what was recorded so far and starts a fresh archive with a
// first page named title.
func (r *Recorder) NewHAR(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.har = schemas.NewHAR(CreatorName, Version)
	r.newPageLocked(title)
}

// NewPage starts a new page; later entries reference it.
func (r *Recorder) NewPage(title string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newPageLocked(title)
}

func (r *Recorder) newPageLocked(title string) string {
	id := "page_" + uuid.NewString()
	r.har.Log.Pages = append(r.har.Log.Pages, schemas.Page{
		StartedDateTime: time.Now(),
		ID:              id,
		Title:           title,
		PageTimings:     schemas.PageTimings{OnContentLoad: -1, OnLoad: -1},
	})
	r.page = id
	return id
}

// HAR returns a copy of the archive recorded so far.
func (r *Recorder) HAR() *schemas.HAR {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *r.har
	out.Log.Pages = append([]schemas.Page(nil), r.har.Log.Pages...)
	out.Log.Entries = append([]schemas.Entry(nil), r.har.Log.Entries...)
	return &out
}

func (r *Recorder) add(e schemas.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Pageref = r.page
	r.har.Log.Entries = append(r.har.Log.Entries, e)
}

func (r *Recorder) handleRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	p := &pending{
		started: time.Now(),
		request: schemas.Request{
			Method:      req.Method,
			URL:         req.URL.String(),
			HTTPVersion: req.Proto,
			Cookies:     schemas.RequestCookies(req),
			Headers:     schemas.HeaderPairs(req.Header),
			QueryString: schemas.QueryPairs(req.URL),
			HeadersSize: -1,
			BodySize:    req.ContentLength,
		},
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			r.log.Debug("Could not read request body.", zap.String("url", p.request.URL), zap.Error(err))
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		p.request.BodySize = int64(len(body))
		if r.cfg.CaptureBodies && len(body) > 0 {
			p.request.PostData = postData(req.Header.Get("Content-Type"), body)
		}
	}

	ctx.UserData = p
	return req, nil
}

func (r *Recorder) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	p, ok := ctx.UserData.(*pending)
	if !ok {
		return resp
	}
	waited := time.Since(p.started)

	if resp == nil {
		errorMsg := "unknown error"
		if ctx.Error != nil {
			errorMsg = ctx.Error.Error()
		}
		r.log.Warn("Proxy received nil response from upstream", zap.String("url", p.request.URL), zap.String("error", errorMsg))
		if ctx.Req == nil {
			return nil
		}
		statusCode := http.StatusBadGateway
		var netErr net.Error
		if errors.As(ctx.Error, &netErr) && netErr.Timeout() {
			statusCode = http.StatusGatewayTimeout
		}
		resp = goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, statusCode, "Proxy error: upstream connection failed: "+errorMsg)
	}

	receiveStart := time.Now()
	var raw []byte
	if resp.Body != nil {
		var err error
		raw, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			r.log.Debug("Could not read response body.", zap.String("url", p.request.URL), zap.Error(err))
		}
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}
	received := time.Since(receiveStart)

	entry := schemas.Entry{
		StartedDateTime: p.started,
		Time:            millis(waited + received),
		Request:         p.request,
		Response: schemas.Response{
			Status:      resp.StatusCode,
			StatusText:  statusText(resp),
			HTTPVersion: resp.Proto,
			Cookies:     schemas.ResponseCookies(resp),
			Headers:     schemas.HeaderPairs(resp.Header),
			Content:     r.content(resp, raw, p.request.URL),
			RedirectURL: resp.Header.Get("Location"),
			HeadersSize: -1,
			BodySize:    int64(len(raw)),
		},
		Timings: schemas.Timings{
			Blocked: -1,
			DNS:     -1,
			Connect: -1,
			SSL:     -1,
			Send:    0,
			Wait:    millis(waited),
			Receive: millis(received),
		},
	}
	r.add(entry)
	return resp
}

func (r *Recorder) content(resp *http.Response, raw []byte, reqURL string) schemas.Content {
	c := schemas.Content{
		Size:     int64(len(raw)),
		MimeType: resp.Header.Get("Content-Type"),
	}
	decoded := raw
	if enc := resp.Header.Values("Content-Encoding"); len(enc) > 0 {
		var err error
		decoded, err = decodeBody(enc, raw)
		if err != nil {
			r.log.Debug("Could not decode response body.", zap.String("url", reqURL), zap.Error(err))
			return c
		}
		c.Size = int64(len(decoded))
	}
	if r.cfg.CaptureBodies && isText(c.MimeType) {
		c.Text = truncate(decoded)
	}
	return c
}

func postData(contentType string, body []byte) *schemas.PostData {
	pd := &schemas.PostData{MimeType: contentType, Text: truncate(body), Params: []schemas.NVPair{}}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/x-www-form-urlencoded" {
		if values, err := url.ParseQuery(string(body)); err == nil {
			pd.Params = schemas.QueryPairs(&url.URL{RawQuery: values.Encode()})
		}
	}
	return pd
}

func truncate(b []byte) string {
	if len(b) > maxCapturedText {
		b = b[:maxCapturedText]
	}
	return string(b)
}

func isText(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case strings.HasSuffix(mt, "+json"), strings.HasSuffix(mt, "+xml"):
		return true
	}
	switch mt {
	case "application/json", "application/javascript", "application/xml", "application/x-www-form-urlencoded":
		return true
	}
	return false
}

func statusText(resp *http.Response) string {
	if _, text, ok := strings.Cut(resp.Status, " "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
