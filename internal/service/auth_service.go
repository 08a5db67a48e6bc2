package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	resetTokenPrefix = "reset_token:"
	resetTokenTTL    = 30 * time.Minute
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Redis    *redis.Client
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Redis:    rdb,
		Cfg:      cfg,
	}
}

func (s *AuthService) Register(user *model.User) error {
	_, err := s.UserRepo.FindByEmail(user.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = s.UserRepo.FindByUsername(user.Username)
	if err == nil {
		return util.ErrUsernameRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hashedPassword)
	user.LastLogin = time.Now()
	return s.UserRepo.Create(user)
}

// TokenPair 登录/注册成功后下发的令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *AuthService) Login(username, password string) (*TokenPair, error) {
	user, err := s.UserRepo.FindByUsername(username)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}

	if !user.IsActive {
		return nil, errors.New("inactive user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	pair, err := s.IssueTokens(user)
	if err != nil {
		return nil, err
	}

	_ = s.UserRepo.UpdateLastLogin(user.ID)
	return pair, nil
}

func (s *AuthService) IssueTokens(user *model.User) (*TokenPair, error) {
	accessToken, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, util.TokenTypeAccess, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}

	refreshToken, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, util.TokenTypeRefresh, s.Cfg.JWT.RefreshExpire)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.Cfg.JWT.ExpireTime.Seconds()),
	}, nil
}

func (s *AuthService) GetCurrentUser(claims *util.Claims) *model.User {
	if claims == nil {
		return nil
	}
	user, err := s.UserRepo.FindByID(claims.UserID)
	if err != nil {
		return nil
	}
	return user
}

// CreateResetToken 生成密码重置令牌并写入Redis，带TTL过期。
// 令牌只存用户名，不存进程内存，重启后仍然有效直至过期。
func (s *AuthService) CreateResetToken(ctx context.Context, username string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.Redis.Set(ctx, resetTokenPrefix+token, username, resetTokenTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (string, error) {
	username, err := s.Redis.Get(ctx, resetTokenPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", util.ErrResetTokenInvalid
		}
		return "", err
	}
	return username, nil
}

// ResetPassword 校验并消费重置令牌，更新密码。令牌一次性使用。
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	username, err := s.VerifyResetToken(ctx, token)
	if err != nil {
		return err
	}

	user, err := s.UserRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrResetTokenInvalid
		}
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.UserRepo.UpdatePassword(user.ID, string(hashedPassword)); err != nil {
		return err
	}

	return s.Redis.Del(ctx, resetTokenPrefix+token).Err()
}
