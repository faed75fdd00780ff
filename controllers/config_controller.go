package controllers

import (
	"github.com/cppla/sharedrop/config"
	"github.com/cppla/sharedrop/utils"
	"github.com/gin-gonic/gin"
)

// ConfigController serves the client-facing limits derived from configuration.
type ConfigController struct {
	cfg config.AppConfig
}

func NewConfigController(cfg config.AppConfig) *ConfigController { return &ConfigController{cfg: cfg} }

// GetShareConfig returns the upload cap and file lifetime clients should enforce.
func (c *ConfigController) GetShareConfig(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"maxUploadSize": c.cfg.MaxUploadSize(),
		"fileTTL":       c.cfg.FileTTL().Milliseconds(),
		"blobProvider":  c.cfg.BlobProvider,
		"folder":        c.cfg.BlobFolder,
	})
}
