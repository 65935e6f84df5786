package notification

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/taskhub/pkg/middleware"
)

// Handler は通知APIのHTTPハンドラ群。
type Handler struct {
	store *Store
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes は通知APIのルーティングをrgに登録する。
// rgには事前にJWTAuthミドルウェアを適用しておくこと。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		// 通知一覧取得
		notifications.GET("", h.handleList())
		// 未読通知一覧取得
		notifications.GET("/unread", h.handleListUnread())
		// 全通知を既読にする
		notifications.PUT("/read-all", h.handleMarkAllAsRead())
		// 通知を既読にする
		notifications.PUT("/:id/read", h.handleMarkAsRead())
		// 通知を削除する
		notifications.DELETE("/:id", h.handleDelete())
	}
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		list, err := h.store.ListByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			log.Printf("[Notification] 通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (h *Handler) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		list, err := h.store.ListUnreadByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			log.Printf("[Notification] 未読通知一覧取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// authorize は通知の存在と所有者を確認する。
// 確認に失敗した場合はレスポンスを書き込んでfalseを返す。
func (h *Handler) authorize(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
		return "", false
	}

	id := c.Param("id")
	n, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return "", false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
		log.Printf("[Notification] 通知取得エラー: %v", err)
		return "", false
	}

	if n.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
		return "", false
	}
	return id, true
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (h *Handler) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.authorize(c)
		if !ok {
			return
		}

		n, err := h.store.MarkRead(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			log.Printf("[Notification] 通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, n)
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (h *Handler) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		updated, err := h.store.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			log.Printf("[Notification] 全通知既読処理エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました", "updated": updated})
	}
}

// handleDelete は指定された通知を削除するハンドラ。
func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.authorize(c)
		if !ok {
			return
		}

		if err := h.store.Delete(c.Request.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の削除に失敗しました"})
			log.Printf("[Notification] 通知削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を削除しました"})
	}
}
