package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

const (
	// headerKeyUserID は認証済みユーザーIDをレスポンスに載せるHTTPヘッダーキー。
	headerKeyUserID = "X-User-ID"
	// TokenCookieName はブラウザ向けにトークンを格納するCookie名。
	TokenCookieName = "token"
	// tokenQueryParam はWebSocket接続でトークンを渡すクエリパラメータ名。
	// ブラウザのWebSocket APIは任意ヘッダーを付けられないため受け付ける。
	tokenQueryParam = "token"
	// issuer はトークンの発行者。
	issuer = "taskhub"
	// DefaultTokenTTL はトークンの既定の有効期間（7日）。
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// RevocationChecker はログアウトなどで失効させたトークンを判定する。
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// ttlが0以下の場合はDefaultTokenTTLを使う。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークン文字列を検証してクレームを返す。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// トークンはAuthorizationヘッダー、tokenクッキー、tokenクエリの順に探す。
// 検証に成功した場合、コンテキストに "user_id"・"email"・"claims" を設定する。
// revokedがnilの場合は失効確認を行わない。
func JWTAuth(secret string, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, errMsg := extractToken(c)
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Printf("[Auth] トークン失効状態の確認に失敗: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "認証状態の確認に失敗しました",
				})
				return
			}
			if isRevoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "トークンは失効しています",
				})
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("claims", claims)
		c.Header(headerKeyUserID, claims.UserID)
		c.Next()
	}
}

// extractToken はリクエストからトークン文字列を取り出す。
// 取り出せない場合は2番目の戻り値にエラーメッセージを返す。
func extractToken(c *gin.Context) (string, string) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			return "", "Bearer トークン形式が不正です"
		}
		return tokenString, ""
	}

	if cookie, err := c.Cookie(TokenCookieName); err == nil && cookie != "" {
		return cookie, ""
	}

	if q := c.Query(tokenQueryParam); q != "" {
		return q, ""
	}

	return "", "認証トークンが必要です"
}

// RequestToken はリクエストに含まれるトークン文字列を返す。無ければ空文字列を返す。
// 認証を必須としないエンドポイント（ログアウトなど）で使う。
func RequestToken(c *gin.Context) string {
	token, errMsg := extractToken(c)
	if errMsg != "" {
		return ""
	}
	return token
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetClaims はGinコンテキストから検証済みクレームを取得する。
// JWTAuthミドルウェアを通っていない場合はnilを返す。
func GetClaims(c *gin.Context) *JWTClaims {
	v, _ := c.Get("claims")
	if claims, ok := v.(*JWTClaims); ok {
		return claims
	}
	return nil
}
