package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/id"
	"github.com/go-otp-auth/internal/pkg/otp"
	"github.com/go-otp-auth/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// smsTimeout bounds the delivery call so a slow provider cannot hold a
// request open. Delivery is best-effort: failures are logged, never surfaced.
const smsTimeout = 10 * time.Second

// phantomHash is a valid bcrypt hash compared against when the email is
// unknown, so that path costs the same as a wrong-password login.
const phantomHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// errInvalidCredentials is shared by the unknown-email and wrong-password
// paths so both return the identical error.
var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)

// LoginResult carries the signed session token plus the public user record.
type LoginResult struct {
	Token string
	User  *domain.User
}

// OTPResult reports an issued challenge. Code is set only when no SMS sender
// is configured and the dev echo is enabled; it must stay empty in production.
type OTPResult struct {
	Code string
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) error
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	RequestOTP(ctx context.Context, req domain.RequestOTPRequest) (*OTPResult, error)
	VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*LoginResult, error)
	Me(ctx context.Context, email string) (*domain.User, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, email string, updates map[string]interface{}) error
}

type tokenSigner interface {
	Sign(userID, email string) (string, error)
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	repo        userStore
	sms         smsSender // nil when no provider is configured
	jwtProvider tokenSigner
	otpValidity time.Duration
	devEchoOTP  bool
	now         func() time.Time
}

type ServiceDeps struct {
	UserRepo    userStore
	SMSSender   smsSender
	JWTProvider tokenSigner
	OTPValidity time.Duration
	DevEchoOTP  bool
	Now         func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OTPValidity <= 0 {
		deps.OTPValidity = otp.DefaultValidity
	}
	return &service{
		repo:        deps.UserRepo,
		sms:         deps.SMSSender,
		jwtProvider: deps.JWTProvider,
		otpValidity: deps.OTPValidity,
		devEchoOTP:  deps.DevEchoOTP,
		now:         deps.Now,
	}
}

// Register creates the user with an empty OTP state. Registration alone does
// not authenticate: no token is issued.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) error {
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Name:         req.Name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The store enforces email uniqueness atomically on insert.
	return s.repo.Create(ctx, u)
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		// Infrastructure failures must not masquerade as bad credentials.
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword([]byte(phantomHash), []byte(req.Password))
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	token, err := s.jwtProvider.Sign(u.UserID, u.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// RequestOTP issues a fresh challenge, replacing any live one, and persists it
// before attempting delivery. Delivery failure never fails the request.
func (s *service) RequestOTP(ctx context.Context, req domain.RequestOTPRequest) (*OTPResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	now := s.now().UTC()
	ch, err := otp.Issue(now, s.otpValidity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, u.Email, withTimestamp(map[string]interface{}{"otp": ch}, now)); err != nil {
		return nil, err
	}

	if s.sms == nil {
		slog.Warn("no SMS sender configured, OTP stored but not delivered", "user_id", u.UserID)
		res := &OTPResult{}
		if s.devEchoOTP {
			res.Code = ch.Code
		}
		return res, nil
	}

	smsCtx, cancel := context.WithTimeout(ctx, smsTimeout)
	defer cancel()
	if err := s.sms.SendSMS(smsCtx, u.Phone, "Your verification code: "+ch.Code); err != nil {
		slog.Warn("OTP delivery failed", "user_id", u.UserID, "err", err)
	}
	return &OTPResult{}, nil
}

func (s *service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*LoginResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
	}
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("OTP not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	now := s.now().UTC()
	if err := otp.Verify(u.OTP, req.Code, now); err != nil {
		switch err {
		case otp.ErrNoChallenge:
			return nil, fmt.Errorf("OTP not found: %w", domain.ErrNotFound)
		case otp.ErrAlreadyUsed, otp.ErrExpired, otp.ErrMismatch:
			return nil, fmt.Errorf("%s: %w", err, domain.ErrBadRequest)
		default:
			return nil, err
		}
	}
	// Persist the consumed flag before issuing the token; the challenge must
	// never verify twice even if token signing fails.
	u.OTP.Used = true
	if err := s.repo.Update(ctx, u.Email, withTimestamp(map[string]interface{}{"otp": u.OTP}, now)); err != nil {
		return nil, err
	}
	token, err := s.jwtProvider.Sign(u.UserID, u.Email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// withTimestamp stamps updated_at from the service clock so the store never
// has to reach for the wall clock on our behalf.
func withTimestamp(updates map[string]interface{}, now time.Time) map[string]interface{} {
	updates["updated_at"] = now.Format(time.RFC3339)
	return updates
}

func (s *service) Me(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return u, nil
}
