package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-otp-auth/internal/application/auth"
	"github.com/go-otp-auth/internal/config"
	"github.com/go-otp-auth/internal/domain"
	jwtinfra "github.com/go-otp-auth/internal/infrastructure/jwt"
	"github.com/go-otp-auth/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockAuthSvc struct{ mock.Mock }

func (m *mockAuthSvc) Register(ctx context.Context, req domain.RegisterRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockAuthSvc) Login(ctx context.Context, req domain.LoginRequest) (*auth.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) RequestOTP(ctx context.Context, req domain.RequestOTPRequest) (*auth.OTPResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.OTPResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*auth.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthSvc) Me(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newAuthRouter(svc auth.Service, provider *jwtinfra.Provider) http.Handler {
	h := NewAuthHandler(svc)
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/request-otp", h.RequestOTP)
	r.Post("/verify-otp", h.VerifyOTP)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(provider))
		r.Get("/me", h.Me)
	})
	return r
}

func newTestProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
	require.NoError(t, err)
	return p
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sampleUser() *domain.User {
	return &domain.User{UserID: "u1", Name: "Alice", Email: "a@x.com", Phone: "+1555", PasswordHash: "hash"}
}

// --- register ---

func TestRegister_Created(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything).Return(nil)

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/register",
		domain.RegisterRequest{Email: "a@x.com", Phone: "+1555", Password: "secret1"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	var env MessageEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "registered successfully", env.Message)
}

func TestRegister_InvalidBody(t *testing.T) {
	svc := &mockAuthSvc{}
	h := newAuthRouter(svc, newTestProvider(t))

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegister_MissingFields(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything).Return(fmt.Errorf("field 'Phone' failed 'required': %w", domain.ErrBadRequest))

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/register", domain.RegisterRequest{Email: "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegister_Duplicate(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything).Return(fmt.Errorf("email already registered: %w", domain.ErrConflict))

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/register",
		domain.RegisterRequest{Email: "a@x.com", Phone: "+1555", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegister_UnexpectedErrorIsGeneric500(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Register", mock.Anything, mock.Anything).Return(fmt.Errorf("dynamodb: connection refused"))

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/register",
		domain.RegisterRequest{Email: "a@x.com", Phone: "+1555", Password: "secret1"})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "dynamodb")
}

// --- login ---

func TestLogin_OK(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(&auth.LoginResult{Token: "signed.jwt", User: sampleUser()}, nil)

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/login",
		domain.LoginRequest{Email: "a@x.com", Password: "secret1"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var env AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "signed.jwt", env.Token)
	require.NotNil(t, env.User)
	assert.Equal(t, "u1", env.User.ID)
	// The password hash must never appear in a response.
	assert.NotContains(t, rr.Body.String(), "hash")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized))

	h := newAuthRouter(svc, newTestProvider(t))
	wrongPw := postJSON(t, h, "/login", domain.LoginRequest{Email: "a@x.com", Password: "wrong"})
	unknown := postJSON(t, h, "/login", domain.LoginRequest{Email: "ghost@x.com", Password: "secret1"})

	// Identical status and body shape for both failure modes.
	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
}

// --- request-otp ---

func TestRequestOTP_Sent(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.Anything).Return(&auth.OTPResult{}, nil)

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/request-otp", domain.RequestOTPRequest{Email: "a@x.com"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var env OTPEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "OTP sent successfully", env.Message)
	assert.Empty(t, env.Code)
}

func TestRequestOTP_DevEcho(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.Anything).Return(&auth.OTPResult{Code: "482913"}, nil)

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/request-otp", domain.RequestOTPRequest{Email: "a@x.com"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var env OTPEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "482913", env.Code)
}

func TestRequestOTP_NotFound(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("RequestOTP", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("user not found: %w", domain.ErrNotFound))

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/request-otp", domain.RequestOTPRequest{Email: "ghost@x.com"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- verify-otp ---

func TestVerifyOTP_OK(t *testing.T) {
	svc := &mockAuthSvc{}
	svc.On("VerifyOTP", mock.Anything, mock.Anything).Return(&auth.LoginResult{Token: "signed.jwt", User: sampleUser()}, nil)

	rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/verify-otp",
		domain.VerifyOTPRequest{Email: "a@x.com", Code: "482913"})

	assert.Equal(t, http.StatusOK, rr.Code)
	var env AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "OTP verified successfully", env.Message)
	assert.Equal(t, "signed.jwt", env.Token)
}

func TestVerifyOTP_FailureKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"expired", fmt.Errorf("OTP expired: %w", domain.ErrBadRequest), http.StatusBadRequest},
		{"already used", fmt.Errorf("OTP already used: %w", domain.ErrBadRequest), http.StatusBadRequest},
		{"mismatch", fmt.Errorf("invalid OTP: %w", domain.ErrBadRequest), http.StatusBadRequest},
		{"no challenge", fmt.Errorf("OTP not found: %w", domain.ErrNotFound), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAuthSvc{}
			svc.On("VerifyOTP", mock.Anything, mock.Anything).Return(nil, tc.err)

			rr := postJSON(t, newAuthRouter(svc, newTestProvider(t)), "/verify-otp",
				domain.VerifyOTPRequest{Email: "a@x.com", Code: "482913"})
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

// --- me ---

func TestMe_RequiresToken(t *testing.T) {
	svc := &mockAuthSvc{}
	h := newAuthRouter(svc, newTestProvider(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMe_OK(t *testing.T) {
	provider := newTestProvider(t)
	token, err := provider.Sign("u1", "a@x.com")
	require.NoError(t, err)

	svc := &mockAuthSvc{}
	svc.On("Me", mock.Anything, "a@x.com").Return(sampleUser(), nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	newAuthRouter(svc, provider).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var env AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotNil(t, env.User)
	assert.Equal(t, "a@x.com", env.User.Email)
	svc.AssertExpectations(t)
}
