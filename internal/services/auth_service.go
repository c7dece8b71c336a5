package services

import (
	"context"
	"strings"
	"time"

	"github.com/calctree/engine/internal/lineage"
	"github.com/calctree/engine/internal/models"
	"github.com/calctree/engine/internal/repository"
	appErr "github.com/calctree/engine/pkg/errors"
	"github.com/calctree/engine/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService is the identity provider: it registers accounts, checks
// credentials and issues the tokens that carry an owner identity.
type AuthService interface {
	Register(ctx context.Context, username, password string) (string, *models.User, error)
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	VerifyToken(token string) (lineage.Owner, error)
}

type authService struct {
	userRepo   repository.UserRepository
	hmacSecret []byte
	tokenTTL   time.Duration
}

var _ AuthService = (*authService)(nil)

func NewAuthService(userRepo repository.UserRepository, secret []byte, tokenTTL time.Duration) AuthService {
	return &authService{
		userRepo:   userRepo,
		hmacSecret: secret,
		tokenTTL:   tokenTTL,
	}
}

func (s *authService) Register(ctx context.Context, username, password string) (string, *models.User, error) {
	username = strings.TrimSpace(username)

	ph, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, appErr.Wrap(err, appErr.CodeInternal, "hash password failed")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(ph),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if appErr.IsCode(err, appErr.CodeAlreadyExists) {
			return "", nil, appErr.Wrap(err, appErr.CodeAlreadyExists, "username already exists")
		}
		return "", nil, err
	}

	token, err := s.issue(user)
	if err != nil {
		return "", nil, err
	}
	logger.L().Info("user registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	return token, user, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	if err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username), &user); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return "", nil, appErr.New(appErr.CodeUnauthorized, "invalid credentials")
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, appErr.New(appErr.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.issue(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// VerifyToken checks signature and expiry and returns the identity in the token.
func (s *authService) VerifyToken(tokenStr string) (lineage.Owner, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.hmacSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return lineage.Owner{}, appErr.Wrap(err, appErr.CodeUnauthorized, "invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return lineage.Owner{}, appErr.Wrap(err, appErr.CodeUnauthorized, "invalid token subject")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return lineage.Owner{}, appErr.Wrap(err, appErr.CodeUnauthorized, "invalid token subject")
	}
	name, _ := claims["name"].(string)
	return lineage.Owner{ID: id, Name: name}, nil
}

func (s *authService) issue(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"name": user.Username,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	})
	tokenString, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "sign token failed")
	}
	return tokenString, nil
}
