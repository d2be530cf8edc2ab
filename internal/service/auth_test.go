package service_test // 测试包

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afifrh/PFEproject/internal/domain"
	"github.com/afifrh/PFEproject/internal/service"
)

const testSecret = "very-secret-key"

// signToken 用指定密钥签发一个测试 token。
func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err, "签发测试 token 不应失败")
	return signed
}

func TestNewAuthService_EmptySecret(t *testing.T) {
	// Act
	authService, err := service.NewAuthService("")

	// Assert
	assert.Error(t, err, "空密钥应返回错误")
	assert.Nil(t, authService)
}

func TestAuthService_VerifyToken_Success(t *testing.T) {
	// Arrange
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-42",
		"role":    "expert",
		"name":    "Alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "")

	// Assert
	assert.NoError(t, err, "有效 token 不应验证失败")
	require.NotNil(t, identity)
	assert.Equal(t, "user-42", identity.UserID)
	assert.Equal(t, domain.RoleExpert, identity.Role)
	assert.Equal(t, "Alice", identity.Name)
}

func TestAuthService_VerifyToken_Expired(t *testing.T) {
	// Arrange
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-42",
		"role":    "expert",
		"exp":     time.Now().Add(-time.Minute).Unix(), // 已过期
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed, "过期 token 应返回统一的认证失败错误")
	assert.Nil(t, identity)
}

func TestAuthService_VerifyToken_WrongSignature(t *testing.T) {
	// Arrange: 用不同的密钥签发
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, "another-secret", jwt.MapClaims{
		"user_id": "user-42",
		"role":    "expert",
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, identity)
}

func TestAuthService_VerifyToken_MissingUserID(t *testing.T) {
	// Arrange: token 有效但缺少 user_id 声明
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"role": "technician",
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed, "缺少 user_id 的 token 应被拒绝")
	assert.Nil(t, identity)
}

func TestAuthService_VerifyToken_ClaimRoleWinsOverDeclared(t *testing.T) {
	// Arrange: token 声明 expert，客户端自报 technician
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-42",
		"role":    "expert",
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "technician")

	// Assert: 以 token 声明为准
	assert.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, domain.RoleExpert, identity.Role)
}

func TestAuthService_VerifyToken_DeclaredRoleFallback(t *testing.T) {
	// Arrange: token 未携带角色声明，使用客户端自报的角色
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-7",
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "technician")

	// Assert
	assert.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, domain.RoleTechnician, identity.Role)
}

func TestAuthService_VerifyToken_UnknownRole(t *testing.T) {
	// Arrange
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-42",
		"role":    "admin", // 中继不认识的角色
	})

	// Act
	identity, err := authService.VerifyToken(tokenStr, "")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, identity)
}

func TestAuthService_VerifyToken_Garbage(t *testing.T) {
	// Arrange
	authService, err := service.NewAuthService(testSecret)
	require.NoError(t, err)

	// Act
	identity, err := authService.VerifyToken("not-a-jwt-at-all", "")

	// Assert
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Nil(t, identity)
}
