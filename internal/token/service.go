// Package token は署名付き時限トークンの発行と検証を提供する。
//
// アクセストークンとリフレッシュトークンは同一の秘密鍵で署名し、
// type クレームで区別する。検証時のtype検査は必須であり、
// 長命なリフレッシュトークンがアクセストークンとして
// 使い回されることを防ぐ。
package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/ledgerbook/internal/model"
)

// Type はトークン種別を表す閉じた列挙型。
type Type string

const (
	// TypeAccess は個々のリクエストを認可する短命トークン。
	TypeAccess Type = "access"
	// TypeRefresh は新しいアクセストークンの発行のみに使う長命トークン。
	TypeRefresh Type = "refresh"
)

// Claims はJWTペイロードを表す。
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Subject はトークンの主体を表す検証済みクレーム。
type Subject struct {
	UserID   int64
	Username string
}

// ServiceConfig はトークンサービスの設定。
type ServiceConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service はHMAC-SHA256で署名されたJWTの発行と検証を行う。
// 秘密鍵とTTLは起動時に1回注入され、以後変更されない。
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewService はServiceを生成する。
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// IssueAccess はユーザーのアクセストークンを発行する。
func (s *Service) IssueAccess(user *model.User) (string, error) {
	return s.issue(user, TypeAccess, s.accessTTL)
}

// IssueRefresh はユーザーのリフレッシュトークンを発行する。
func (s *Service) IssueRefresh(user *model.User) (string, error) {
	return s.issue(user, TypeRefresh, s.refreshTTL)
}

// AccessTTLSeconds はアクセストークンの有効期間を秒単位で返す。
// ログインレスポンスのexpires_inに使用する。
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

func (s *Service) issue(user *model.User, typ Type, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:  user.Username,
		TokenType: string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名・有効期限・種別を検証し、主体を返す。
// 形式不正、署名不正、期限切れ、種別不一致のいずれであっても
// 同一のAuthErrorを返し、失敗理由を呼び出し側に漏らさない。
// 検証は純粋なCPU処理であり副作用を持たない。
func (s *Service) Verify(tokenString string, expected Type) (*Subject, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, model.NewAuthError(model.MsgInvalidToken)
	}

	// 種別検査は必須: アクセスとリフレッシュの取り違えを全面的に拒否する
	if claims.TokenType != string(expected) {
		return nil, model.NewAuthError(model.MsgInvalidToken)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, model.NewAuthError(model.MsgInvalidToken)
	}

	return &Subject{UserID: userID, Username: claims.Username}, nil
}
