package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"social-go/internal/auth"
	"social-go/internal/middleware"
	"social-go/internal/models"
	"social-go/internal/services"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthService struct {
	registerFn func(ctx context.Context, email, username, password string) (*models.User, error)
	loginFn    func(ctx context.Context, email, password string) (string, *models.User, error)
}

func (s *stubAuthService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	return s.registerFn(ctx, email, username, password)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	return s.loginFn(ctx, email, password)
}

type memoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (b *memoryBlacklist) Add(ctx context.Context, jti string, exp time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked == nil {
		b.revoked = make(map[string]bool)
	}
	b.revoked[jti] = true
	return nil
}

func (b *memoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[jti], nil
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterHandler_Created(t *testing.T) {
	var gotUsername string
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, email, username, password string) (*models.User, error) {
			gotUsername = username
			user := &models.User{Email: email, Username: username}
			user.ID = 1
			return user, nil
		},
	}
	handler := NewAuthHandler(stub, &memoryBlacklist{})

	req := jsonRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "alice@example.com",
		Password: "s3cret",
	})
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	// 未提供用户名时退化为邮箱 @ 前缀
	assert.Equal(t, "alice", gotUsername)
}

func TestRegisterHandler_Validation(t *testing.T) {
	handler := NewAuthHandler(&stubAuthService{}, &memoryBlacklist{})

	cases := []struct {
		name string
		body RegisterRequest
	}{
		{"missing email", RegisterRequest{Password: "x"}},
		{"missing password", RegisterRequest{Email: "a@b.com"}},
		{"invalid email", RegisterRequest{Email: "nodomain", Password: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/auth/register", tc.body)
			rec := httptest.NewRecorder()
			handler.Register(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterHandler_DuplicateEmail(t *testing.T) {
	stub := &stubAuthService{
		registerFn: func(ctx context.Context, email, username, password string) (*models.User, error) {
			return nil, services.ErrUserAlreadyExists
		},
	}
	handler := NewAuthHandler(stub, &memoryBlacklist{})

	req := jsonRequest(t, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "alice@example.com",
		Password: "s3cret",
	})
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginHandler_OK(t *testing.T) {
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string) (string, *models.User, error) {
			user := &models.User{Email: email, Username: "alice"}
			user.ID = 1
			return "signed-token", user, nil
		},
	}
	handler := NewAuthHandler(stub, &memoryBlacklist{})

	req := jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "s3cret",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "signed-token", resp.Token)
	assert.Equal(t, uint(1), resp.User.ID)
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	for _, serviceErr := range []error{services.ErrUserNotFound, services.ErrInvalidCredentials} {
		stub := &stubAuthService{
			loginFn: func(ctx context.Context, email, password string) (string, *models.User, error) {
				return "", nil, serviceErr
			},
		}
		handler := NewAuthHandler(stub, &memoryBlacklist{})

		req := jsonRequest(t, http.MethodPost, "/auth/login", LoginRequest{
			Email:    "alice@example.com",
			Password: "wrong",
		})
		rec := httptest.NewRecorder()
		handler.Login(rec, req)

		// 用户不存在与密码错误返回同样的 401，避免枚举邮箱
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestLogoutHandler_BlacklistsJTI(t *testing.T) {
	blacklist := &memoryBlacklist{}
	handler := NewAuthHandler(&stubAuthService{}, blacklist)

	claims := &auth.Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	ctx := context.WithValue(req.Context(), middleware.ClaimsKey, claims)
	rec := httptest.NewRecorder()
	handler.LogoutHandler(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusOK, rec.Code)
	revoked, err := blacklist.IsBlacklisted(context.Background(), "jti-123")
	require.NoError(t, err)
	assert.True(t, revoked)
}
