// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/hearthside/hearthside/internal/model"

// SignUpRequest represents the request body for creating an account.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInRequest represents the request body for signing in.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountResponse wraps the public user in auth responses.
type AccountResponse struct {
	OK   bool             `json:"ok"`
	User model.PublicUser `json:"user"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
