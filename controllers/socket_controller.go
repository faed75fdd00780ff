package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cppla/sharedrop/models"
	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 64 << 10
	announceWait   = 5 * time.Second
)

// SocketController upgrades clients to the realtime room channel.
type SocketController struct {
	svc        *share.Service
	log        *zap.Logger
	upgrader   websocket.Upgrader
	outboxSize int
}

// NewSocketController builds the websocket endpoint. allowedOrigins follows the
// CORS setting: a single "*" accepts any origin.
func NewSocketController(svc *share.Service, log *zap.Logger, allowedOrigins []string, outboxSize int) *SocketController {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketController{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		outboxSize: outboxSize,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err != nil || u.Host == "" {
			return false
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve handles GET /ws. A sessionId query parameter joins the room right
// away; otherwise the client sends join-room.
func (s *SocketController) Serve(ctx *gin.Context) {
	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	peer := share.NewPeer(utils.SanitizeLabel(ctx.Query("peerLabel")), s.outboxSize)
	log := s.log.With(zap.String("peer_id", peer.ID))
	log.Debug("websocket connected", zap.String("remote", ctx.ClientIP()))

	go s.writePump(conn, peer, log)

	if sessionID := ctx.Query("sessionId"); sessionID != "" {
		s.join(peer, models.JoinRoomRequest{SessionID: sessionID, PeerLabel: peer.Label})
	}
	s.readPump(conn, peer, log)

	s.svc.Leave(peer)
	peer.Close()
	log.Debug("websocket disconnected")
}

func (s *SocketController) readPump(conn *websocket.Conn, peer *share.Peer, log *zap.Logger) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		s.handleMessage(peer, data, log)
	}
}

func (s *SocketController) handleMessage(peer *share.Peer, data []byte, log *zap.Logger) {
	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(peer, "Invalid message")
		return
	}
	switch msg.Event {
	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if err := decodeData(msg.Data, &req); err != nil {
			s.sendError(peer, "Invalid join-room payload")
			return
		}
		req.Normalize()
		s.join(peer, req)
	case models.EventFileInfo:
		var req models.FileInfoRequest
		if err := decodeData(msg.Data, &req); err != nil {
			s.sendError(peer, "Invalid file-info payload")
			return
		}
		req.Normalize()
		s.announce(peer, req, log)
	case models.EventLeaveRoom:
		s.svc.Leave(peer)
	default:
		s.sendError(peer, "Unknown event "+msg.Event)
	}
}

func decodeData(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(raw, out)
}

func (s *SocketController) join(peer *share.Peer, req models.JoinRoomRequest) {
	if label := utils.SanitizeLabel(req.PeerLabel); label != "" {
		peer.Label = label
	}
	ctx, cancel := context.WithTimeout(context.Background(), announceWait)
	defer cancel()
	if _, err := s.svc.Join(ctx, req.SessionID, peer); err != nil {
		s.sendError(peer, "Invalid session id")
	}
}

func (s *SocketController) announce(peer *share.Peer, req models.FileInfoRequest, log *zap.Logger) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, _ = s.svc.Hub().RoomOf(peer)
	}
	label := utils.SanitizeLabel(req.PeerLabel)
	if label == "" {
		label = peer.Label
	}
	info := req.FileInfo
	info.Name = utils.SanitizeLabel(info.Name)

	ctx, cancel := context.WithTimeout(context.Background(), announceWait)
	defer cancel()
	if _, err := s.svc.Announce(ctx, sessionID, info, label, peer.ID); err != nil {
		switch {
		case errors.Is(err, share.ErrInvalidSession):
			s.sendError(peer, "Invalid session id")
		case errors.Is(err, share.ErrInvalidFile):
			s.sendError(peer, "Invalid file info")
		case errors.Is(err, share.ErrFileTooLarge):
			s.sendError(peer, "File exceeds upload limit")
		case errors.Is(err, share.ErrDuplicateFile):
			s.sendError(peer, "File already announced")
		default:
			log.Error("announce failed", zap.String("session_id", sessionID), zap.Error(err))
			s.sendError(peer, "Failed to share file")
		}
	}
}

func (s *SocketController) sendError(peer *share.Peer, message string) {
	s.svc.Hub().Send(peer, models.Event{Event: models.EventError, Data: models.ErrorPayload{Message: message}})
}

// writePump is the only writer on conn. It exits when the peer is dropped or a
// write fails, closing the connection so readPump returns too.
func (s *SocketController) writePump(conn *websocket.Conn, peer *share.Peer, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev := <-peer.Outbox():
			payload, err := ev.Encode()
			if err != nil {
				log.Error("encode event failed", zap.String("event", ev.Event), zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				peer.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				peer.Close()
				return
			}
		case <-peer.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}
