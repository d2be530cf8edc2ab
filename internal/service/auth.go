package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/afifrh/PFEproject/internal/domain"
)

// Identity 是 token 验证成功后得到的稳定用户身份。
type Identity struct {
	UserID string
	Role   domain.Role
	Name   string
}

// AuthService 是 Identity Resolver：验证外部身份服务签发的
// 不透明 bearer token，并解析出用户标识和角色。
// token 的签发、用户注册等都在外部身份服务，这里只做验证。
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService 创建 AuthService 实例。
// jwtSecretKey 应从安全配置中获取，与签发方共享。
func NewAuthService(jwtSecretKey string) (*AuthService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	return &AuthService{jwtSecret: []byte(jwtSecretKey)}, nil
}

// VerifyToken 验证 bearer token 并返回其中的身份信息。
// declaredRole 是客户端在 join 消息中自报的角色，仅当 token
// 未携带 role 声明时作为后备；两者冲突时以 token 为准并记日志。
// 任何验证失败都返回 ErrAuthenticationFailed，不向客户端泄露细节。
func (s *AuthService) VerifyToken(tokenStr string, declaredRole string) (*Identity, error) {
	claims, err := s.validateToken(tokenStr)
	if err != nil {
		logrus.WithError(err).Warn("AuthService: Token validation failed")
		return nil, ErrAuthenticationFailed
	}

	// user_id 是必需声明
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		logrus.Warn("AuthService: 'user_id' claim missing or not a string")
		return nil, ErrAuthenticationFailed
	}

	// role 声明优先于客户端自报的角色
	roleStr, _ := claims["role"].(string)
	if roleStr == "" {
		roleStr = declaredRole
	} else if declaredRole != "" && declaredRole != roleStr {
		logrus.WithFields(logrus.Fields{
			"user_id":       userID,
			"claim_role":    roleStr,
			"declared_role": declaredRole,
		}).Warn("AuthService: Declared role differs from token claim, using claim")
	}
	role, ok := domain.ParseRole(roleStr)
	if !ok {
		logrus.WithFields(logrus.Fields{"user_id": userID, "role": roleStr}).
			Warn("AuthService: Unknown role")
		return nil, ErrAuthenticationFailed
	}

	// name 声明可选，用于 incoming-call 的显示名
	name, _ := claims["name"].(string)

	logrus.WithFields(logrus.Fields{"user_id": userID, "role": role}).
		Debug("AuthService: Token verified")
	return &Identity{UserID: userID, Role: role, Name: name}, nil
}

// validateToken 解析并验证 JWT token 字符串。
func (s *AuthService) validateToken(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法是否为 HMAC (HS256)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		// 解析或验证过程中发生错误（格式错误、签名无效、过期等）
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}
