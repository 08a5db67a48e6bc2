package service

import (
	"fmt"
	"learnai_backend/internal/config"

	"gopkg.in/gomail.v2"
)

type MailService struct {
	cfg config.MailConfig
}

func NewMailService(cfg config.MailConfig) *MailService {
	return &MailService{cfg: cfg}
}

// SendPasswordResetEmail 发送密码重置邮件
func (s *MailService) SendPasswordResetEmail(to, username, resetLink string) error {
	body := fmt.Sprintf(`
		<div style='font-family: Arial, sans-serif; max-width: 500px; margin: auto; border: 1px solid #eee; border-radius: 8px; padding: 24px; background: #f9f9f9;'>
			<h2 style='color: #2c3e50;'>Password Reset Request</h2>
			<p>Hi <strong>%s</strong>,</p>
			<p>We received a request to reset your password for your LearnAI account.</p>
			<p style='margin: 24px 0;'>
				<a href='%s' style='display: inline-block; padding: 12px 24px; background: #3498db; color: #fff; text-decoration: none; border-radius: 5px; font-weight: bold;'>
					Reset Password
				</a>
			</p>
			<p>If you did not request this, you can safely ignore this email.</p>
			<hr style='margin: 24px 0; border: none; border-top: 1px solid #eee;'>
			<p style='font-size: 12px; color: #888;'>If the button above does not work, copy and paste this link into your browser:<br>%s</p>
			<p style='font-size: 12px; color: #888;'>Thank you,<br>The LearnAI Team</p>
		</div>
	`, username, resetLink, resetLink)

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Password Reset Request")
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	return d.DialAndSend(m)
}
