package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/sharedrop/blob"
	"github.com/cppla/sharedrop/models"
	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/utils"
)

// ShareController serves session creation, upload credentials and the REST
// view of rooms.
type ShareController struct {
	svc *share.Service
	log *zap.Logger
}

// NewShareController creates a new ShareController instance.
func NewShareController(svc *share.Service, log *zap.Logger) *ShareController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShareController{svc: svc, log: log}
}

// CreateSession mints a new room identifier.
func (s *ShareController) CreateSession(ctx *gin.Context) {
	utils.Success(ctx, s.svc.CreateSession())
}

// UploadCredentials returns one-time credentials for a direct upload. The body
// is optional; when present its size is checked against the upload cap.
func (s *ShareController) UploadCredentials(ctx *gin.Context) {
	var req blob.CredentialRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
			return
		}
	}
	req.FileName = utils.SanitizeLabel(req.FileName)

	creds, err := s.svc.UploadCredentials(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, share.ErrFileTooLarge) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file exceeds upload limit")
			return
		}
		s.log.Error("upload credentials failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to generate upload signature")
		return
	}
	utils.Success(ctx, creds)
}

// GetRoom lists a room's live files with the time each has left.
func (s *ShareController) GetRoom(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	records, err := s.svc.ListActive(ctx.Request.Context(), sessionID)
	if err != nil {
		respondShareError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"sessionId": sessionID,
		"files":     models.ToRoomFiles(records, s.svc.Now()),
	})
}

type announceRequest struct {
	FileInfo  models.FileInfo `json:"fileInfo" binding:"required"`
	PeerLabel string          `json:"peerLabel"`
	UserID    string          `json:"userId"`
}

// AnnounceFile is the HTTP counterpart of the file-info event. Every peer in
// the room is notified since the caller has no socket of its own.
func (s *ShareController) AnnounceFile(ctx *gin.Context) {
	var req announceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	label := req.PeerLabel
	if label == "" {
		label = req.UserID
	}
	info := req.FileInfo
	info.Name = utils.SanitizeLabel(info.Name)

	rec, err := s.svc.Announce(ctx.Request.Context(), ctx.Param("sessionId"), info, utils.SanitizeLabel(label), "")
	if err != nil {
		respondShareError(ctx, err)
		return
	}
	utils.Created(ctx, rec)
}

func respondShareError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, share.ErrInvalidSession):
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid session id")
	case errors.Is(err, share.ErrInvalidFile):
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid file info")
	case errors.Is(err, share.ErrFileTooLarge):
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "file exceeds upload limit")
	case errors.Is(err, share.ErrDuplicateFile):
		utils.Error(ctx, http.StatusConflict, 40901, "file already announced")
	case errors.Is(err, share.ErrFileNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "file not found in room")
	case errors.Is(err, share.ErrSchedulerStopped):
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "server is shutting down")
	default:
		utils.Sugar.Errorf("share request failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to update room")
	}
}
