package util

import "errors"

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrUsernameRegistered = errors.New("该用户名已被注册")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSetNotReady        = errors.New("question set not ready")
	ErrNoTranscript       = errors.New("no transcript available for this video")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
)
