package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkmindlabs/edugenie/internal/api"
	"github.com/sparkmindlabs/edugenie/internal/conversation"
	"github.com/sparkmindlabs/edugenie/internal/extract"
	"github.com/sparkmindlabs/edugenie/internal/identity"
	"github.com/sparkmindlabs/edugenie/internal/store"
)

const (
	testUser  = "anon_0123456789abcdef0123456789abcdef"
	otherUser = "anon_fedcba9876543210fedcba9876543210"
)

type event map[string]any

type testServer struct {
	*httptest.Server
	repo store.Repository
	svc  *Service
}

func newTestServer(t *testing.T, c *fakeCompleter, limit int) *testServer {
	t.Helper()
	repo := store.NewMemory()
	ext := extract.New(extract.Config{}, map[extract.Strategy]extract.Backend{
		extract.DocumentText: extract.PDFText{},
	}, nil)
	conns := NewConnectionManager()
	svc := NewService(repo, newTestEngine(t, c, ext), WithLiveSessions(conns))
	h := NewHandler(svc, conns, NewRateLimiter(limit, time.Hour), nil, HandlerConfig{IsDev: true})

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(h.Close)
	return &testServer{Server: srv, repo: repo, svc: svc}
}

func (s *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{identity.AnonCookieName + "=" + testUser}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	ev := readEvent(t, conn)
	require.Equal(t, "session", ev["type"])
	return conn, ev["session_id"].(string)
}

func (s *testServer) get(t *testing.T, user, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: user})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) upload(t *testing.T, sessionID, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/sessions/"+sessionID+"/reference", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: testUser})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func send(t *testing.T, conn *websocket.Conn, typ, content string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: typ, Content: content}))
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorBody {
	t.Helper()
	var body api.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func makePDF(t *testing.T, text string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.MultiCell(0, 6, text, "", "L", false)
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestSocketGateFlow(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	conn, _ := srv.dial(t)

	send(t, conn, msgSendMessage, "hello")
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "not_authenticated", ev["error"])

	send(t, conn, msgSubmitCode, "0000")
	ev = readEvent(t, conn)
	assert.Equal(t, "decision", ev["type"])
	assert.Equal(t, "denied", ev["outcome"])
	assert.EqualValues(t, 2, ev["remaining"])

	send(t, conn, msgSubmitCode, testCode)
	ev = readEvent(t, conn)
	assert.Equal(t, "allowed", ev["outcome"])
	assert.Equal(t, "Access verified! How can I help you today?", ev["message"])

	send(t, conn, msgPing, "")
	assert.Equal(t, "pong", readEvent(t, conn)["type"])

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte("not json")))
	assert.Equal(t, "bad_request", readEvent(t, conn)["error"])
}

func TestSocketExhaustsAttempts(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	conn, _ := srv.dial(t)

	for _, code := range []string{"0000", "1111", "2222"} {
		send(t, conn, msgSubmitCode, code)
		readEvent(t, conn)
	}
	send(t, conn, msgSubmitCode, testCode)
	ev := readEvent(t, conn)
	assert.Equal(t, "exhausted", ev["outcome"])
	assert.Contains(t, ev["message"], "SparkMind Labs")
}

func TestChatUploadAndExport(t *testing.T) {
	c := &fakeCompleter{}
	srv := newTestServer(t, c, 100)
	conn, sessionID := srv.dial(t)

	resp := srv.upload(t, sessionID, "quiz.pdf", makePDF(t, "Q1: 2+2=?"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "upload requires the access code")

	send(t, conn, msgSubmitCode, testCode)
	readEvent(t, conn)

	resp = srv.upload(t, sessionID, "quiz.pdf", makePDF(t, "Q1: 2+2=?"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.True(t, up.Pending)
	assert.Equal(t, string(extract.DocumentText), up.Strategy)

	resp = srv.get(t, testUser, "/api/sessions/"+sessionID+"/export?format=pdf")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "nothing_to_export", decodeError(t, resp).Error)

	send(t, conn, msgSendMessage, "Create an answer key")
	ev := readEvent(t, conn)
	require.Equal(t, "reply", ev["type"])
	assert.Equal(t, "reply 1", ev["content"])
	assert.EqualValues(t, 2, ev["turns"])

	userTurn := c.lastCall()[1].Content
	assert.True(t, strings.HasPrefix(userTurn, "Create an answer key\n\n"+conversation.ReferenceHeader))
	assert.Contains(t, userTurn, "2+2")

	resp = srv.get(t, testUser, "/api/sessions/"+sessionID+"/export?format=pdf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "EduGenie_Output.pdf")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	resp = srv.get(t, testUser, "/api/sessions/"+sessionID+"/export?format=docx")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "EduGenie_Output.docx")

	resp = srv.get(t, testUser, "/api/sessions/"+sessionID+"/export?format=txt")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.get(t, otherUser, "/api/sessions/"+sessionID+"/export?format=pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRejectsUnsupportedFile(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	conn, sessionID := srv.dial(t)
	send(t, conn, msgSubmitCode, testCode)
	readEvent(t, conn)

	resp := srv.upload(t, sessionID, "notes.txt", []byte("plain text"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "unsupported_upload", decodeError(t, resp).Error)
}

func TestSocketRejectsConcurrentTurn(t *testing.T) {
	c := &fakeCompleter{release: make(chan struct{}), started: make(chan struct{}, 1)}
	srv := newTestServer(t, c, 100)
	conn, _ := srv.dial(t)
	send(t, conn, msgSubmitCode, testCode)
	readEvent(t, conn)

	send(t, conn, msgSendMessage, "slow")
	<-c.started
	send(t, conn, msgSendMessage, "impatient")
	ev := readEvent(t, conn)
	assert.Equal(t, "turn_in_progress", ev["error"])

	close(c.release)
	ev = readEvent(t, conn)
	assert.Equal(t, "reply", ev["type"])
	assert.EqualValues(t, 2, ev["turns"])
}

func TestSocketRateLimit(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 1)
	conn, _ := srv.dial(t)
	send(t, conn, msgSubmitCode, testCode)
	readEvent(t, conn)

	send(t, conn, msgSendMessage, "one")
	send(t, conn, msgSendMessage, "two")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev := readEvent(t, conn)
		if ev["type"] == "error" {
			seen[ev["error"].(string)] = true
		} else {
			seen[ev["type"].(string)] = true
		}
	}
	assert.True(t, seen["reply"])
	assert.True(t, seen[CodeRateLimited])
}

func TestSessionEndsWithSocket(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	conn, sessionID := srv.dial(t)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "reload"))

	assert.Eventually(t, func() bool {
		s, err := srv.repo.GetSession(context.Background(), sessionID)
		return err == nil && s == nil
	}, 2*time.Second, 10*time.Millisecond)

	resp := srv.get(t, testUser, "/api/sessions/"+sessionID+"/export?format=pdf")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeSessionExpired, decodeError(t, resp).Error)
}

func TestIdleOpenSocketSurvivesSweep(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	conn, sessionID := srv.dial(t)
	send(t, conn, msgSubmitCode, testCode)
	require.Equal(t, "allowed", readEvent(t, conn)["outcome"])

	ctx := context.Background()
	sess, err := srv.repo.GetSession(ctx, sessionID)
	require.NoError(t, err)
	sess.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, srv.repo.SaveSession(ctx, sess))

	n, err := srv.svc.Sweep(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	send(t, conn, msgSendMessage, "still here")
	ev := readEvent(t, conn)
	assert.Equal(t, "reply", ev["type"])
	assert.Equal(t, "reply 1", ev["content"])
}

func TestReloadStartsFreshSession(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{}, 100)
	first, firstID := srv.dial(t)
	send(t, first, msgSubmitCode, testCode)
	readEvent(t, first)
	require.NoError(t, first.Close(websocket.StatusNormalClosure, "reload"))

	second, secondID := srv.dial(t)
	assert.NotEqual(t, firstID, secondID)
	send(t, second, msgSendMessage, "hello")
	assert.Equal(t, "not_authenticated", readEvent(t, second)["error"])
}
