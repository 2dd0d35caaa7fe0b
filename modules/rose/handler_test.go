package rose

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"rosa-canvas-server/modules/common/i18n"
)

type testServer struct {
	*httptest.Server
	client   *http.Client
	registry *Registry
}

func newTestServer(t *testing.T, gen Generator) *testServer {
	t.Helper()
	catalog := i18n.MustNewCatalog("es")
	factory := func(lang language.Tag) *Controller {
		return NewController(ControllerOptions{
			Generator: gen,
			Catalog:   catalog,
			Language:  lang,
			Logger:    zerolog.Nop(),
		})
	}
	registry := NewRegistry(factory, time.Hour, zerolog.Nop())
	handler := NewHandler(registry, catalog, NewPage(), 1<<20, zerolog.Nop())

	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testServer{Server: srv, client: &http.Client{Jar: jar}, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, StateResponse) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out StateResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, out
}

func (s *testServer) postForm(t *testing.T, body string) StateResponse {
	t.Helper()
	resp, out := s.do(t, http.MethodPost, FormPath, strings.NewReader(body), "application/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("form: status %d", resp.StatusCode)
	}
	return out
}

func (s *testServer) waitStatus(t *testing.T, want Status) StateResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, out := s.do(t, http.MethodGet, StatePath, nil, "")
		if out.State.Status == want {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never became %s", want)
	return StateResponse{}
}

func (s *testServer) openPage(t *testing.T, acceptLanguage string) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, s.URL+"/", nil)
	if acceptLanguage != "" {
		req.Header.Set("Accept-Language", acceptLanguage)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /: status %d", resp.StatusCode)
	}
	return string(body)
}

func TestHandler_IndexSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	body := s.openPage(t, "")

	if !strings.Contains(body, "Personalizador de Rosas Pro") {
		t.Error("page should render the form")
	}
	u, _ := url.Parse(s.URL)
	cookies := s.client.Jar.Cookies(u)
	if len(cookies) != 1 || cookies[0].Name != SessionCookie {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if _, ok := s.registry.Get(cookies[0].Value); !ok {
		t.Error("session should be registered")
	}
}

func TestHandler_GenerateMissingName(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestServer(t, gen)
	s.openPage(t, "")
	s.postForm(t, `{"name":"   ","size_percent":50}`)

	resp, out := s.do(t, http.MethodPost, GeneratePath, nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out.Success || out.ErrorMessage != "Por favor, ingresa un nombre." {
		t.Errorf("unexpected response: %+v", out)
	}
	if out.State.Status != StatusIdle {
		t.Errorf("status should stay idle, got %s", out.State.Status)
	}
	if gen.callCount() != 0 {
		t.Error("no remote call expected")
	}
}

func TestHandler_GenerateAndDownload(t *testing.T) {
	gen := &fakeGenerator{img: &GeneratedImage{Data: []byte("rose-png"), MIMEType: "image/png"}}
	s := newTestServer(t, gen)
	s.openPage(t, "")

	out := s.postForm(t, `{"name":"Maria","size_percent":20}`)
	if out.State.Name != "Maria" || out.State.SizePercent != 20 {
		t.Fatalf("unexpected state after form: %+v", out.State)
	}

	resp, _ := s.do(t, http.MethodPost, GeneratePath, nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	done := s.waitStatus(t, StatusSuccess)
	if done.State.Result == nil || done.State.Result.Filename != "Rosa_Maria_20.png" {
		t.Fatalf("unexpected result: %+v", done.State.Result)
	}

	dl, err := s.client.Get(s.URL + DownloadPath)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	data, _ := io.ReadAll(dl.Body)
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", dl.StatusCode)
	}
	if got := dl.Header.Get("Content-Disposition"); got != `attachment; filename="Rosa_Maria_20.png"` {
		t.Errorf("Content-Disposition: %q", got)
	}
	if string(data) != "rose-png" {
		t.Errorf("body: %q", data)
	}
	if got := dl.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type: %q", got)
	}
}

func TestHandler_GenerateAppliesSubmittedForm(t *testing.T) {
	gen := &fakeGenerator{img: &GeneratedImage{Data: []byte("rose-png"), MIMEType: "image/png"}}
	s := newTestServer(t, gen)
	s.openPage(t, "")

	// 마지막 폼 변경이 아직 도착하지 않은 상태
	s.postForm(t, `{"name":"Mari","size_percent":40}`)

	resp, _ := s.do(t, http.MethodPost, GeneratePath, strings.NewReader(`{"name":"Maria","size_percent":80}`), "application/json")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	done := s.waitStatus(t, StatusSuccess)
	if done.State.Result == nil || done.State.Result.Filename != "Rosa_Maria_80.png" {
		t.Fatalf("unexpected result: %+v", done.State.Result)
	}
	if req := gen.lastCall(); req.Name != "Maria" || req.SizePercent != 80 {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestHandler_GenerateInvalidBody(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestServer(t, gen)
	s.openPage(t, "")
	s.postForm(t, `{"name":"Maria"}`)

	resp, out := s.do(t, http.MethodPost, GeneratePath, strings.NewReader("{not json"), "application/json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if out.State.Status != StatusIdle || gen.callCount() != 0 {
		t.Errorf("no submit expected, got %+v", out.State)
	}
}

func TestHandler_DownloadUsesResultMIMEType(t *testing.T) {
	gen := &fakeGenerator{img: &GeneratedImage{Data: []byte("opaque"), MIMEType: "image/webp"}}
	s := newTestServer(t, gen)
	s.openPage(t, "")
	s.postForm(t, `{"name":"Maria"}`)

	if resp, _ := s.do(t, http.MethodPost, GeneratePath, nil, ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	s.waitStatus(t, StatusSuccess)

	dl, err := s.client.Get(s.URL + DownloadPath)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()
	if got := dl.Header.Get("Content-Type"); got != "image/webp" {
		t.Errorf("Content-Type: %q", got)
	}
}

func TestHandler_DownloadWithoutResult(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	s.openPage(t, "")

	resp, out := s.do(t, http.MethodGet, DownloadPath, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if out.ErrorMessage == "" {
		t.Error("expected an error message")
	}
}

func TestHandler_RemoteFailureIsGeneric(t *testing.T) {
	gen := &fakeGenerator{err: &RemoteInvocationError{Model: "m", Err: ErrNoImageReturned}}
	s := newTestServer(t, gen)
	s.openPage(t, "en-US,en;q=0.9")
	s.postForm(t, `{"name":"Maria"}`)

	if resp, _ := s.do(t, http.MethodPost, GeneratePath, nil, ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	out := s.waitStatus(t, StatusError)
	if out.State.ErrorMessage != "Connection error. Please try again." {
		t.Errorf("unexpected message %q", out.State.ErrorMessage)
	}
}

func multipartBody(t *testing.T, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "reference.png")
	if err != nil {
		t.Fatalf("multipart: %v", err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestHandler_ReferenceUpload(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	s.openPage(t, "")

	body, ct := multipartBody(t, pngBytes(t))
	resp, out := s.do(t, http.MethodPost, ReferencePath, body, ct)
	if resp.StatusCode != http.StatusOK || !out.State.HasReference {
		t.Fatalf("expected reference to be stored, got %d %+v", resp.StatusCode, out.State)
	}

	preview, err := s.client.Get(s.URL + ReferencePath)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	preview.Body.Close()
	if preview.StatusCode != http.StatusOK || preview.Header.Get("Content-Type") != "image/png" {
		t.Errorf("preview: %d %s", preview.StatusCode, preview.Header.Get("Content-Type"))
	}

	body, ct = multipartBody(t, []byte("plain text is not an image"))
	resp, out = s.do(t, http.MethodPost, ReferencePath, body, ct)
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
	if !out.State.HasReference {
		t.Error("previous reference should be kept")
	}

	resp, out = s.do(t, http.MethodDelete, ReferencePath, nil, "")
	if resp.StatusCode != http.StatusOK || out.State.HasReference {
		t.Errorf("expected reference cleared, got %d %+v", resp.StatusCode, out.State)
	}
}

func TestHandler_ReferenceUndecodable(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	s.openPage(t, "")

	broken := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	body, ct := multipartBody(t, broken)
	resp, out := s.do(t, http.MethodPost, ReferencePath, body, ct)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out.State.HasReference || out.State.Notice == "" || out.State.Status != StatusIdle {
		t.Errorf("unexpected state: %+v", out.State)
	}
}

func TestHandler_InvalidFormBody(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	s.openPage(t, "")

	resp, out := s.do(t, http.MethodPost, FormPath, strings.NewReader("{not json"), "application/json")
	if resp.StatusCode != http.StatusBadRequest || out.Success {
		t.Errorf("expected 400, got %d %+v", resp.StatusCode, out)
	}
}

func TestHandler_PageReloadResets(t *testing.T) {
	s := newTestServer(t, &fakeGenerator{})
	s.openPage(t, "")
	s.postForm(t, `{"name":"Maria","size_percent":80}`)

	s.openPage(t, "")
	_, out := s.do(t, http.MethodGet, StatePath, nil, "")
	if out.State.Name != "" || out.State.SizePercent != DefaultSizePercent {
		t.Errorf("expected reset state, got %+v", out.State)
	}
}

func TestHandler_WebSocketPushesSnapshots(t *testing.T) {
	gen := &fakeGenerator{
		release: make(chan struct{}),
		img:     &GeneratedImage{Data: []byte("rose"), MIMEType: "image/png"},
	}
	s := newTestServer(t, gen)
	s.openPage(t, "")
	s.postForm(t, `{"name":"Maria"}`)

	u, _ := url.Parse(s.URL)
	header := http.Header{}
	for _, c := range s.client.Jar.Cookies(u) {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + WebSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("initial snapshot: %v", err)
	}
	if snap.Status != StatusIdle || snap.Name != "Maria" {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	if resp, _ := s.do(t, http.MethodPost, GeneratePath, nil, ""); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if err := conn.ReadJSON(&snap); err != nil || snap.Status != StatusGenerating {
		t.Fatalf("expected generating snapshot, got %+v (%v)", snap, err)
	}

	close(gen.release)
	if err := conn.ReadJSON(&snap); err != nil || snap.Status != StatusSuccess {
		t.Fatalf("expected success snapshot, got %+v (%v)", snap, err)
	}
}
