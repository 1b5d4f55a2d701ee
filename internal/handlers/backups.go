package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/errors"
	"github.com/exiloncms/exiloncms/pkg/logger"
	"github.com/exiloncms/exiloncms/pkg/response"
)

const maxDumpUpload = 256 << 20

// BackupHandler manages database snapshots and SQL dumps.
type BackupHandler struct {
	backups *services.BackupService
	log     *zap.Logger
}

func NewBackupHandler(backups *services.BackupService) *BackupHandler {
	return &BackupHandler{backups: backups, log: logger.WithModule("backups")}
}

// GET /api/admin/backups
func (h *BackupHandler) List(c *gin.Context) {
	files, err := h.backups.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"supported": h.backups.Supported(),
		"backups":   files,
	})
}

// POST /api/admin/backups
func (h *BackupHandler) Create(c *gin.Context) {
	file, err := h.backups.Create(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, file)
}

// GET /api/admin/backups/:name
func (h *BackupHandler) Download(c *gin.Context) {
	name := c.Param("name")
	path, err := h.backups.Path(name)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// DELETE /api/admin/backups/:name
func (h *BackupHandler) Delete(c *gin.Context) {
	if err := h.backups.Delete(requestContext(c), c.Param("name")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/admin/database/optimize
func (h *BackupHandler) Optimize(c *gin.Context) {
	if err := h.backups.Optimize(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"optimized": true})
}

// GET /api/admin/database/export streams a SQL dump. Once the body has
// started, failures can only be logged.
func (h *BackupHandler) Export(c *gin.Context) {
	if !h.backups.Supported() {
		response.Error(c, services.ErrNotSQLite)
		return
	}
	name := fmt.Sprintf("exiloncms-%s.sql", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/sql; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)

	if err := h.backups.Export(requestContext(c), c.Writer); err != nil {
		h.log.Error("sql export failed", zap.Error(err))
		_ = c.Error(err)
	}
}

// POST /api/admin/database/import
func (h *BackupHandler) Import(c *gin.Context) {
	file, _, ok := openUpload(c, maxDumpUpload)
	if !ok {
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		response.Error(c, errors.ErrBadRequest.WithInternal(err))
		return
	}
	if !isTextDump(mtype) {
		response.Error(c, errors.NewBadRequest("the dump must be a plain text SQL file"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	if err := h.backups.Import(requestContext(c), file); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"imported": true})
}

func isTextDump(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/plain") {
			return true
		}
	}
	return false
}
