package auth

import "time"

type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type SignUpRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type SignInRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
