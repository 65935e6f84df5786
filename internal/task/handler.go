package task

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/taskhub/pkg/middleware"
)

// Handler はタスクAPIのHTTPハンドラ群。
type Handler struct {
	service *Service
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes はタスクAPIのルーティングをrgに登録する。
// rgには事前にJWTAuthミドルウェアを適用しておくこと。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	{
		tasks.GET("", h.handleList())
		tasks.GET("/assigned", h.handleListAssigned())
		tasks.GET("/created", h.handleListCreated())
		tasks.GET("/overdue", h.handleListOverdue())
		tasks.GET("/:id", h.handleGet())
		tasks.GET("/:id/audit", h.handleAudit())
		tasks.POST("", h.handleCreate())
		tasks.PUT("/:id", h.handleUpdate())
		tasks.DELETE("/:id", h.handleDelete())
	}
}

// writeError はサービス層のエラーをHTTPステータスに変換して書き込む。
func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrAssigneeNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[Task] %sエラー: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// requireUser は認証済みユーザーIDを返す。取得できなければ401を書き込む。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// handleList は全タスクをstatus・priorityで絞り込んで返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}

		var f Filter
		if v := c.Query("status"); v != "" {
			f.Status = Status(v)
			if !f.Status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("status %q is not valid", v)})
				return
			}
		}
		if v := c.Query("priority"); v != "" {
			f.Priority = Priority(v)
			if !f.Priority.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("priority %q is not valid", v)})
				return
			}
		}

		tasks, err := h.service.List(c.Request.Context(), f)
		if err != nil {
			writeError(c, "タスク一覧取得", err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// handleListAssigned は自分が担当するタスクを返すハンドラ。
func (h *Handler) handleListAssigned() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		tasks, err := h.service.List(c.Request.Context(), Filter{AssignedToID: userID})
		if err != nil {
			writeError(c, "担当タスク一覧取得", err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// handleListCreated は自分が作成したタスクを返すハンドラ。
func (h *Handler) handleListCreated() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		tasks, err := h.service.List(c.Request.Context(), Filter{CreatorID: userID})
		if err != nil {
			writeError(c, "作成タスク一覧取得", err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// handleListOverdue は期限切れで未完了のタスクを返すハンドラ。
func (h *Handler) handleListOverdue() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}
		tasks, err := h.service.ListOverdue(c.Request.Context())
		if err != nil {
			writeError(c, "期限切れタスク一覧取得", err)
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// handleGet は1件のタスクを返すハンドラ。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		t, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, "タスク取得", err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// handleAudit はタスクの監査ログを返すハンドラ。
func (h *Handler) handleAudit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		entries, err := h.service.AuditTrail(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeError(c, "監査ログ取得", err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// handleCreate はタスクを作成するハンドラ。
func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var in CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		t, err := h.service.Create(c.Request.Context(), userID, in)
		if err != nil {
			writeError(c, "タスク作成", err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// handleUpdate はタスクを部分更新するハンドラ。
// assignedToIdにnullを指定すると担当者を外す。
func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var in UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if v := in.AssignedToID.Value; v != nil {
			if _, err := uuid.Parse(*v); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "assignedToId must be a UUID"})
				return
			}
		}

		t, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), in)
		if err != nil {
			writeError(c, "タスク更新", err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// handleDelete はタスクを削除するハンドラ。
func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		if err := h.service.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
			writeError(c, "タスク削除", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
	}
}
