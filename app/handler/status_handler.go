package handler

import (
	"net/http"
	"strconv"

	"taskstream/internal/service"
	"taskstream/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusHandler handles task status queries
type StatusHandler struct {
	statusService *service.StatusService
}

// NewStatusHandler creates status handler
func NewStatusHandler(statusService *service.StatusService) *StatusHandler {
	return &StatusHandler{statusService: statusService}
}

// GetTaskStatus gets the latest status snapshot for a task
// @Summary Get task status
// @Description Get the latest status snapshot by task ID
// @Tags status
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.ProcessingTask
// @Router /tasks/{task_id}/status [get]
func (h *StatusHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	row, err := h.statusService.GetTaskStatus(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get task status, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, row)
}

// GetTaskHistory gets the recorded status history for a task
// @Summary Get task status history
// @Description Get the ordered status history by task ID
// @Tags status
// @Produce json
// @Param task_id path string true "Task ID"
// @Success 200 {object} model.TaskStatusHistory
// @Router /tasks/{task_id}/history [get]
func (h *StatusHandler) GetTaskHistory(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	history, err := h.statusService.GetTaskHistory(c.Request.Context(), taskID)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get task history, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for task"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// Cancel cancels a queued task
// @Summary Cancel task
// @Description Cancel a queued task by task ID
// @Tags status
// @Param task_id path string true "Task ID"
// @Success 200 {object} map[string]string
// @Router /tasks/{task_id}/cancel [post]
func (h *StatusHandler) Cancel(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id required"})
		return
	}

	if err := h.statusService.CancelTask(c.Request.Context(), taskID); err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to cancel task, task_id: %s, error: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task cancelled"})
}

// ListDocumentTasks gets the tasks correlated with a document
// @Summary List document tasks
// @Description Get status snapshots for every task of a document, newest first
// @Tags status
// @Produce json
// @Param document_id path string true "Document ID"
// @Param limit query int false "Return count limit (default 50)"
// @Success 200 {object} map[string]interface{}
// @Router /documents/{document_id}/tasks [get]
func (h *StatusHandler) ListDocumentTasks(c *gin.Context) {
	documentID := c.Param("document_id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id required"})
		return
	}

	limit := 50
	if limitParam := c.Query("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	tasks, err := h.statusService.ListDocumentTasks(c.Request.Context(), documentID, limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list document tasks, document_id: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"tasks":       tasks,
		"total":       len(tasks),
	})
}

// QueueStats gets task queue statistics
// @Summary Get queue statistics
// @Description Get pending/active/failed counts for the task queue
// @Tags status
// @Produce json
// @Success 200 {object} interfaces.QueueStats
// @Router /queue/stats [get]
func (h *StatusHandler) QueueStats(c *gin.Context) {
	stats, err := h.statusService.GetQueueStats(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to get queue stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListDeadLetters gets dead letter records
// @Summary List dead letters
// @Description Get tasks that exhausted their retry budget, oldest first
// @Tags status
// @Produce json
// @Param limit query int false "Return count limit (default 100)"
// @Success 200 {object} map[string]interface{}
// @Router /dead-letters [get]
func (h *StatusHandler) ListDeadLetters(c *gin.Context) {
	limit := 100
	if limitParam := c.Query("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.statusService.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list dead letters: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dead_letters": records,
		"total":        len(records),
	})
}

// RequeueDeadLetter requeues the oldest dead letter record
// @Summary Requeue dead letter
// @Description Pop the oldest dead letter record and submit it back to the queue
// @Tags status
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /dead-letters/requeue [post]
func (h *StatusHandler) RequeueDeadLetter(c *gin.Context) {
	record, err := h.statusService.RequeueDeadLetter(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to requeue dead letter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"message": "dead letter queue empty"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "task requeued",
		"task_id": record.TaskID,
	})
}
