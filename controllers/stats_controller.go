package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/sharedrop/share"
	"github.com/cppla/sharedrop/utils"
)

// StatsController provides operator views and actions over live rooms.
type StatsController struct {
	svc *share.Service
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *share.Service) *StatsController {
	return &StatsController{svc: svc}
}

// GetStats returns room, file, peer and timer counts. Store failures are
// reported through storeHealthy instead of failing the endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	utils.Success(ctx, s.svc.Stats(ctx.Request.Context()))
}

// RemoveFile takes a file down before its deadline. publicId is a wildcard
// parameter since provider IDs carry their folder.
func (s *StatsController) RemoveFile(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	publicID := strings.TrimPrefix(ctx.Param("publicId"), "/")
	canceled, err := s.svc.Remove(ctx.Request.Context(), sessionID, publicID)
	if err != nil {
		respondShareError(ctx, err)
		return
	}
	utils.Sugar.Infof("admin removed file %s from room %s (timer pending: %t)", publicID, sessionID, canceled)
	utils.Success(ctx, gin.H{
		"sessionId":     sessionID,
		"publicId":      publicID,
		"timerCanceled": canceled,
	})
}
