package sms

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sender define la interfaz para el envio de codigos de confirmacion por SMS.
// La entrega real es un colaborador externo; el servicio devuelve el codigo
// en la respuesta y trata el envio como best-effort.
type Sender interface {
	SendOTP(ctx context.Context, toPhone string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("sms sender disabled")
	}
	return errors.New(s.reason)
}

type logSender struct {
	logger *zap.Logger
}

// NewLogSender registra el codigo en el log en lugar de enviarlo. Para desarrollo.
func NewLogSender(logger *zap.Logger) Sender {
	return &logSender{logger: logger}
}

func (s *logSender) SendOTP(_ context.Context, toPhone string, code string, expiresAt time.Time) error {
	if s.logger != nil {
		s.logger.Info("sms otp",
			zap.String("phone", toPhone),
			zap.String("code", code),
			zap.Time("expires_at", expiresAt),
		)
	}
	return nil
}
