package auth

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/KTachibanaM/pill-city/internal/db"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 24 * time.Hour

var (
	ErrInvalidUserID      = errors.New("user id must be 1-15 characters of letters, numbers, underscore or dash")
	ErrUserIDTaken        = errors.New("user id is taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,15}$`)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, q db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     q,
	}
}

// SignUp creates a user whose id doubles as their public handle.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	if !userIDPattern.MatchString(req.ID) || req.Password == "" {
		return User{}, ErrInvalidUserID
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO users (id, password_hash)
		VALUES ($1,$2)
		ON CONFLICT (id) DO NOTHING
	`, req.ID, string(hash))
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() == 0 {
		return User{}, ErrUserIDTaken
	}
	return User{ID: req.ID, CreatedAt: time.Now()}, nil
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT password_hash FROM users WHERE id = $1
	`, req.ID)

	var hash string
	if err := row.Scan(&hash); err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}

	token, err := s.signToken(req.ID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
