package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ideagraph/internal/advisor"
	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/extract"
	"ideagraph/internal/metrics"
	"ideagraph/internal/mover"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/store"
)

// handleUpload ingests a multipart file into an item: document library
// upload, text extraction, chunk fan-out into the knowledge index.
func (s *Server) handleUpload(c *gin.Context) {
	itemID := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.DefaultUploadTimeout)
	defer cancel()

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		s.abort(c, fmt.Errorf("item %s: %w", itemID, err))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if header.Size > extract.MaxBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %d MB limit", extract.MaxBodySize>>20),
		})
		return
	}

	src, err := header.Open()
	if err != nil {
		s.abort(c, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, extract.MaxBodySize+1))
	if err != nil {
		s.abort(c, err)
		return
	}
	if int64(len(data)) > extract.MaxBodySize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds the %d MB limit", extract.MaxBodySize>>20),
		})
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, err := s.extractor.Extract(header.Filename, contentType, data)
	if err != nil {
		s.abort(c, err)
		return
	}

	file := &domain.ItemFile{
		ItemID:      item.ID,
		Filename:    header.Filename,
		Size:        int64(len(data)),
		ContentType: contentType,
		UploaderID:  s.uploaderID(ctx, c),
	}
	if s.drive != nil {
		remote, err := s.uploadToDrive(ctx, item, header.Filename, contentType, data)
		if err != nil {
			s.abort(c, err)
			return
		}
		file.RemoteID = remote.ID
		file.RemoteURL = remote.WebURL
	}

	if err := s.store.CreateFile(ctx, file); err != nil {
		s.abort(c, err)
		return
	}
	s.sync.SyncFile(ctx, file, extract.SplitChunks(text), uploaderLogin(c))

	stored, err := s.store.GetFile(ctx, file.ID)
	if err != nil {
		stored = file
	}
	c.JSON(http.StatusCreated, stored)
}

// uploadToDrive puts the file bytes into the item's folder, creating the
// folder on first use.
func (s *Server) uploadToDrive(ctx context.Context, item *domain.Item, filename, contentType string, data []byte) (*msgraph.DriveItem, error) {
	folderID := item.FolderID
	if folderID == "" {
		folder, err := s.drive.EnsureFolder(ctx, "", mover.FolderName(item.Title))
		if err != nil {
			return nil, fmt.Errorf("ensure item folder: %w", err)
		}
		if err := s.store.SetItemFolder(ctx, item.ID, folder.ID); err != nil {
			return nil, err
		}
		folderID = folder.ID
	}
	remote, err := s.drive.UploadFile(ctx, folderID, filename, contentType, data)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// handleDeleteFile reverses an upload: knowledge chunks, the database row,
// and best-effort the remote file.
func (s *Server) handleDeleteFile(c *gin.Context) {
	ctx := c.Request.Context()
	fileID := c.Param("id")

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		s.abort(c, fmt.Errorf("file %s: %w", fileID, err))
		return
	}

	s.sync.DeleteFile(ctx, file.ID)
	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		s.abort(c, err)
		return
	}
	if s.drive != nil && file.RemoteID != "" {
		if err := s.drive.DeleteItem(ctx, file.RemoteID); err != nil {
			// The row and chunks are gone; the remote leftover is logged
			// for manual cleanup rather than resurrecting the file.
			s.logger.Warn("http: remote delete of %s (%s): %v", file.RemoteID, file.Filename, err)
		}
	}
	c.Status(http.StatusNoContent)
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
	ItemID   string `json:"item_id"`
	AskedBy  string `json:"asked_by"`
	// Save upserts the exchange back into the knowledge collection.
	Save bool `json:"save"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	ctx := c.Request.Context()

	start := time.Now()
	qa, err := s.pipeline.Answer(ctx, req.Question, req.ItemID, req.AskedBy)
	metrics.QuestionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.abort(c, err)
		return
	}

	if err := s.store.CreateQuestionAnswer(ctx, qa); err != nil {
		s.abort(c, err)
		return
	}
	if req.Save {
		if err := s.sync.SyncQA(ctx, qa); err != nil {
			s.abort(c, err)
			return
		}
		qa.SavedAsKnowledge = true
	}
	c.JSON(http.StatusOK, qa)
}

type advisorRequest struct {
	Mode            string `json:"mode" binding:"required"`
	TaskDescription string `json:"task_description" binding:"required"`
}

func (s *Server) handleAdvisor(c *gin.Context) {
	var req advisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode and task_description are required"})
		return
	}
	if s.advisor == nil {
		s.abort(c, igerrors.Disabled("support advisor"))
		return
	}

	analysis, err := s.advisor.Advise(c.Request.Context(), advisor.Mode(req.Mode), req.TaskDescription)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode, "analysis": analysis})
}

type supportRequest struct {
	Conversation string `json:"conversation" binding:"required"`
}

func (s *Server) handleSupportAnalyze(c *gin.Context) {
	var req supportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation is required"})
		return
	}
	if s.advisor == nil {
		s.abort(c, igerrors.Disabled("support advisor"))
		return
	}

	analysis, err := s.advisor.AnalyzeThread(c.Request.Context(), req.Conversation)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

type moveRequest struct {
	ToItemID string `json:"to_item_id" binding:"required"`
	NotifyTo string `json:"notify_to"`
}

func (s *Server) handleMoveTask(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_item_id is required"})
		return
	}
	if s.mover == nil {
		s.abort(c, igerrors.Disabled("task mover"))
		return
	}

	task, err := s.mover.Move(c.Request.Context(), c.Param("id"), req.ToItemID, req.NotifyTo)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// abort writes a sanitized error response with a status derived from the
// error taxonomy.
func (s *Server) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case store.IsNotFound(err):
		status = http.StatusNotFound
	case igerrors.IsConflict(err):
		status = http.StatusConflict
	case igerrors.IsDisabled(err):
		status = http.StatusServiceUnavailable
	case igerrors.IsTransient(err):
		status = http.StatusServiceUnavailable
	default:
		var pe *igerrors.PermanentError
		if errors.As(err, &pe) {
			status = http.StatusBadRequest
		}
	}
	if status >= 500 {
		s.logger.Error("http: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	msg := igerrors.UserMessage(err)
	if store.IsNotFound(err) {
		msg = "The requested resource was not found."
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) uploaderID(ctx context.Context, c *gin.Context) string {
	login := strings.TrimSpace(c.PostForm("uploader"))
	if login == "" {
		return ""
	}
	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		return ""
	}
	return user.ID
}

func uploaderLogin(c *gin.Context) string {
	return strings.TrimSpace(c.PostForm("uploader"))
}
