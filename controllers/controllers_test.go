package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/sharedrop/blob"
	"github.com/cppla/sharedrop/config"
	"github.com/cppla/sharedrop/models"
	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/store"
)

type stubBlobs struct {
	fail bool
}

func (b stubBlobs) Credentials(_ context.Context, req blob.CredentialRequest) (blob.Credentials, error) {
	if b.fail {
		return blob.Credentials{}, errors.New("signer offline")
	}
	return blob.Credentials{Signature: "abc123", Timestamp: 1767225600, CloudName: "demo", APIKey: "key", Folder: blob.DefaultFolder}, nil
}

func (stubBlobs) Delete(context.Context, string) error { return nil }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestService(t *testing.T, blobs blob.Store) *share.Service {
	t.Helper()
	svc := share.NewService(share.Options{
		Store: store.NewMemoryStore(store.MemoryOptions{}, nil),
		Blobs: blobs,
		Hub:   share.NewHub(nil, nil),
	})
	t.Cleanup(svc.Shutdown)
	return svc
}

func newTestEngine(svc *share.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	sc := NewShareController(svc, nil)
	ws := NewSocketController(svc, nil, []string{"*"}, 16)
	st := NewStatsController(svc)
	cfg := config.AppConfig{ShareFileTTLSeconds: 180, ShareMaxUploadMB: 1024, BlobProvider: "cloudinary", BlobFolder: blob.DefaultFolder}
	cc := NewConfigController(cfg)

	g := r.Group("/api/v1/share")
	g.POST("/session", sc.CreateSession)
	g.POST("/upload-credentials", sc.UploadCredentials)
	g.GET("/rooms/:sessionId", sc.GetRoom)
	g.POST("/rooms/:sessionId/files", sc.AnnounceFile)
	g.GET("/config", cc.GetShareConfig)
	g.GET("/ws", ws.Serve)
	r.GET("/admin/stats", st.GetStats)
	r.DELETE("/admin/rooms/:sessionId/files/*publicId", st.RemoveFile)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestCreateSession(t *testing.T) {
	r := newTestEngine(newTestService(t, stubBlobs{}))
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/share/session", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	assert.True(t, share.ValidSessionID(sess.SessionID))
	assert.NotZero(t, sess.CreatedAt)
}

func TestUploadCredentials(t *testing.T) {
	r := newTestEngine(newTestService(t, stubBlobs{}))

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/share/upload-credentials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var creds blob.Credentials
	require.NoError(t, json.Unmarshal(env.Data, &creds))
	assert.Equal(t, "abc123", creds.Signature)
	assert.Equal(t, "temp_shares", creds.Folder)

	w, env = doJSON(t, r, http.MethodPost, "/api/v1/share/upload-credentials", blob.CredentialRequest{FileName: "big.iso", Size: blob.MaxUploadSize + 1})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 41301, env.Code)
}

func TestUploadCredentials_ProviderFailure(t *testing.T) {
	r := newTestEngine(newTestService(t, stubBlobs{fail: true}))
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/share/upload-credentials", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50061, env.Code)
}

func TestRoomRESTRoundTrip(t *testing.T) {
	svc := newTestService(t, stubBlobs{})
	r := newTestEngine(svc)
	room := svc.CreateSession().SessionID

	info := models.FileInfo{Name: "<i>notes</i>.txt", Size: 12, URL: "https://cdn.example.com/n.txt", PublicID: "temp_shares/n"}
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/share/rooms/"+room+"/files", gin.H{"fileInfo": info, "userId": "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec models.FileRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "notes.txt", rec.Name)
	assert.Equal(t, "alice", rec.UploadedBy)

	w, env = doJSON(t, r, http.MethodGet, "/api/v1/share/rooms/"+room, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Files []models.RoomFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "temp_shares/n", body.Files[0].PublicID)
	assert.InDelta(t, (3 * time.Minute).Milliseconds(), body.Files[0].TimeRemaining, 5000)

	w, env = doJSON(t, r, http.MethodPost, "/api/v1/share/rooms/"+room+"/files", gin.H{"fileInfo": info, "userId": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/share/rooms/not%20valid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, r, http.MethodDelete, "/admin/rooms/"+room+"/files/temp_shares/n", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"timerCanceled":true`)

	w, env = doJSON(t, r, http.MethodDelete, "/admin/rooms/"+room+"/files/temp_shares/n", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40401, env.Code)

	_, env = doJSON(t, r, http.MethodGet, "/api/v1/share/rooms/"+room, nil)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Empty(t, body.Files)
}

func TestGetShareConfig(t *testing.T) {
	r := newTestEngine(newTestService(t, stubBlobs{}))
	w, env := doJSON(t, r, http.MethodGet, "/api/v1/share/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"maxUploadSize":1073741824,"fileTTL":180000,"blobProvider":"cloudinary","folder":"temp_shares"}`, string(env.Data))
}

func TestGetStats(t *testing.T) {
	svc := newTestService(t, stubBlobs{})
	r := newTestEngine(svc)
	room := svc.CreateSession().SessionID
	_, err := svc.Announce(context.Background(), room, models.FileInfo{Name: "a", Size: 1, URL: "u", PublicID: "a"}, "p", "")
	require.NoError(t, err)

	_, env := doJSON(t, r, http.MethodGet, "/admin/stats", nil)
	var st share.Stats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, share.Stats{Rooms: 1, Files: 1, ArmedExpiry: 1, StoreHealthy: true}, st)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/share/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSocketRoomFlow(t *testing.T) {
	svc := newTestService(t, stubBlobs{})
	srv := httptest.NewServer(newTestEngine(svc))
	defer srv.Close()
	room := svc.CreateSession().SessionID

	alice := dial(t, srv, "sessionId="+room+"&peerLabel=alice")
	f := readFrame(t, alice)
	assert.Equal(t, models.EventExistingFiles, f.Event)
	assert.JSONEq(t, `{"files":[]}`, string(f.Data))

	bob := dial(t, srv, "peerLabel=bob")
	require.NoError(t, bob.WriteJSON(gin.H{"event": "join-room", "data": gin.H{"roomId": room}}))
	f = readFrame(t, bob)
	assert.Equal(t, models.EventExistingFiles, f.Event)

	f = readFrame(t, alice)
	assert.Equal(t, models.EventPeerJoined, f.Event)
	assert.JSONEq(t, `{"peerLabel":"bob"}`, string(f.Data))

	require.NoError(t, alice.WriteJSON(gin.H{"event": "file-info", "data": gin.H{
		"sessionId": room,
		"fileInfo":  models.FileInfo{Name: "photo.png", Size: 2048, URL: "https://cdn.example.com/p.png", PublicID: "temp_shares/p"},
	}}))
	f = readFrame(t, bob)
	require.Equal(t, models.EventFileAdded, f.Event)
	var rec models.FileRecord
	require.NoError(t, json.Unmarshal(f.Data, &rec))
	assert.Equal(t, "temp_shares/p", rec.PublicID)
	assert.Equal(t, "alice", rec.UploadedBy)

	carol := dial(t, srv, "sessionId="+room+"&peerLabel=carol")
	f = readFrame(t, carol)
	require.Equal(t, models.EventExistingFiles, f.Event)
	var existing models.ExistingFiles
	require.NoError(t, json.Unmarshal(f.Data, &existing))
	assert.Equal(t, []models.FileRecord{rec}, existing.Files)

	_, err := svc.Remove(context.Background(), room, "temp_shares/p")
	require.NoError(t, err)
	// alice also saw carol join before the expiry
	for _, conn := range []*websocket.Conn{alice, bob} {
		f = readFrame(t, conn)
		if f.Event == models.EventPeerJoined {
			f = readFrame(t, conn)
		}
		assert.Equal(t, models.EventFileExpired, f.Event)
		assert.JSONEq(t, `{"publicId":"temp_shares/p","message":"File expired after 3 minutes"}`, string(f.Data))
	}
	f = readFrame(t, carol)
	assert.Equal(t, models.EventFileExpired, f.Event)
}

func TestSocketErrors(t *testing.T) {
	svc := newTestService(t, stubBlobs{})
	srv := httptest.NewServer(newTestEngine(svc))
	defer srv.Close()

	conn := dial(t, srv, "peerLabel=eve")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := readFrame(t, conn)
	assert.Equal(t, models.EventError, f.Event)

	require.NoError(t, conn.WriteJSON(gin.H{"event": "join-room", "data": gin.H{"sessionId": "../../etc"}}))
	f = readFrame(t, conn)
	assert.Equal(t, models.EventError, f.Event)
	assert.JSONEq(t, `{"message":"Invalid session id"}`, string(f.Data))

	require.NoError(t, conn.WriteJSON(gin.H{"event": "file-info", "data": gin.H{"fileInfo": gin.H{"name": "x"}}}))
	f = readFrame(t, conn)
	assert.Equal(t, models.EventError, f.Event)

	require.NoError(t, conn.WriteJSON(gin.H{"event": "dance"}))
	f = readFrame(t, conn)
	assert.Equal(t, models.EventError, f.Event)
}

func TestSocketLeaveKeepsFiles(t *testing.T) {
	svc := newTestService(t, stubBlobs{})
	srv := httptest.NewServer(newTestEngine(svc))
	defer srv.Close()
	room := svc.CreateSession().SessionID

	conn := dial(t, srv, "sessionId="+room+"&peerLabel=alice")
	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(gin.H{"event": "file-info", "data": gin.H{
		"fileInfo": models.FileInfo{Name: "a.txt", Size: 1, URL: "https://cdn.example.com/a.txt", PublicID: "a"},
	}}))
	require.NoError(t, conn.WriteJSON(gin.H{"event": "leave-room", "data": gin.H{}}))
	conn.Close()

	require.Eventually(t, func() bool {
		_, peers := svc.Hub().Counts()
		return peers == 0
	}, 3*time.Second, 10*time.Millisecond)

	files, err := svc.ListActive(context.Background(), room)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "alice", files[0].UploadedBy)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://share.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://share.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
