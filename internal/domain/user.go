package domain

import "time"

// OTPChallenge is the stored state of an issued one-time passcode.
// A user holds at most one challenge; issuing a new code replaces it wholesale.
type OTPChallenge struct {
	Code      string    `json:"-" dynamodbav:"code"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
	Used      bool      `json:"used" dynamodbav:"used"`
}

type User struct {
	UserID       string        `json:"id" dynamodbav:"user_id"`
	Name         string        `json:"name,omitempty" dynamodbav:"name"`
	Email        string        `json:"email" dynamodbav:"email"` // normalized to lowercase, unique
	Phone        string        `json:"phone" dynamodbav:"phone"`
	PasswordHash string        `json:"-" dynamodbav:"password_hash"`
	OTP          *OTPChallenge `json:"-" dynamodbav:"otp,omitempty"`
	CreatedAt    time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time     `json:"updated" dynamodbav:"updated_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RequestOTPRequest struct {
	Email string `json:"email" validate:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}
