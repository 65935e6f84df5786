package auth

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/taskhub/pkg/middleware"
)

// Handler は認証APIとユーザー参照APIのHTTPハンドラ群。
type Handler struct {
	store    *Store
	denylist Denylist
	secret   string
	ttl      time.Duration
	// cost はbcryptのコスト。テストでは下げる。
	cost int
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(store *Store, denylist Denylist, secret string, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = middleware.DefaultTokenTTL
	}
	return &Handler{
		store:    store,
		denylist: denylist,
		secret:   secret,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
	}
}

// RegisterRoutes は認証APIのルーティングを登録する。
// publicは認証不要、protectedにはJWTAuthを適用済みのグループを渡す。
// limiterは登録とログインにだけ適用する。
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup, limiter gin.HandlerFunc) {
	auth := public.Group("/auth")
	{
		auth.POST("/register", limiter, h.handleRegister())
		auth.POST("/login", limiter, h.handleLogin())
		// 期限切れのトークンでもクッキーは消せるよう認証不要にしている
		auth.POST("/logout", h.handleLogout())
	}

	me := protected.Group("/auth")
	{
		me.GET("/me", h.handleMe())
		me.PUT("/profile", h.handleUpdateProfile())
	}

	users := protected.Group("/users")
	{
		users.GET("", h.handleListUsers())
		users.GET("/:id", h.handleGetUser())
	}
}

// registerRequest はユーザー登録リクエスト。
type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required,min=2"`
	Password string `json:"password" binding:"required,min=6"`
}

// loginRequest はログインリクエスト。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// profileRequest はプロフィール更新リクエスト。省略したフィールドは変更しない。
type profileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// authResponse は登録とログインのレスポンス。
type authResponse struct {
	User  Summary `json:"user"`
	Token string  `json:"token"`
}

func (h *Handler) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			log.Printf("[Auth] パスワードのハッシュ化に失敗: %v", err)
			return
		}

		user, err := h.store.Create(c.Request.Context(), req.Email, req.Name, string(hash))
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			log.Printf("[Auth] ユーザー登録エラー: %v", err)
			return
		}

		h.respondWithToken(c, http.StatusCreated, user)
	}
}

func (h *Handler) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := h.authenticate(c, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			log.Printf("[Auth] ログインエラー: %v", err)
			return
		}

		h.respondWithToken(c, http.StatusOK, user)
	}
}

// authenticate はメールアドレスとパスワードを照合する。
// ユーザーが存在しない場合もパスワード不一致と同じErrInvalidCredentialsを返す。
func (h *Handler) authenticate(c *gin.Context, email, password string) (*User, error) {
	user, err := h.store.GetByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// respondWithToken はJWTを発行し、クッキーとボディの両方で返す。
func (h *Handler) respondWithToken(c *gin.Context, status int, user *User) {
	token, err := middleware.GenerateJWT(h.secret, user.ID, user.Email, h.ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		log.Printf("[Auth] トークン生成エラー: %v", err)
		return
	}

	h.setTokenCookie(c, token, int(h.ttl.Seconds()))
	c.JSON(status, authResponse{
		User:  Summary{ID: user.ID, Email: user.Email, Name: user.Name},
		Token: token,
	})
}

func (h *Handler) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookieName, value, maxAge, "/", "", c.Request.TLS != nil, true)
}

func (h *Handler) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := middleware.RequestToken(c); token != "" {
			h.revoke(c, token)
		}

		h.setTokenCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}

// revoke は有効なトークンを残りの有効期間だけDenylistに登録する。
// 検証できないトークンは既に使えないので何もしない。
func (h *Handler) revoke(c *gin.Context, token string) {
	claims, err := middleware.ParseJWT(h.secret, token)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := h.denylist.Revoke(c.Request.Context(), claims.ID, ttl); err != nil {
		log.Printf("[Auth] トークンの失効登録に失敗 (user=%s): %v", claims.UserID, err)
	}
}

func (h *Handler) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.currentUser(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func (h *Handler) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := h.store.UpdateProfile(c.Request.Context(), userID, req.Name, req.Email)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, user)
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			log.Printf("[Auth] プロフィール更新エラー: %v", err)
		}
	}
}

// currentUser は認証済みユーザーを取得する。失敗時はレスポンスを書き込んでfalseを返す。
func (h *Handler) currentUser(c *gin.Context) (*User, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	return h.lookupUser(c, userID)
}

func (h *Handler) lookupUser(c *gin.Context, id string) (*User, bool) {
	user, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		log.Printf("[Auth] ユーザー取得エラー: %v", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.store.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			log.Printf("[Auth] ユーザー一覧取得エラー: %v", err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func (h *Handler) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.lookupUser(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"createdAt": user.CreatedAt,
		})
	}
}
