package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Ventana de validez del OTP y retraso artificial que simula el envio por SMS.
	OTPTTLSeconds   int `env:"OTP_TTL_SECONDS" envDefault:"120"`
	SMSDelaySeconds int `env:"SMS_DELAY_SECONDS" envDefault:"2"`

	// Region por defecto para numeros sin prefijo internacional ("" = exigir +E.164).
	PhoneDefaultRegion string `env:"PHONE_DEFAULT_REGION" envDefault:""`

	// Mensajes visibles al usuario. Varios vienen localizados del producto original,
	// por eso viven en configuracion y no en codigo.
	MsgOTPSent        string `env:"MSG_OTP_SENT" envDefault:"We will sent code to you in sms.(use %s), you have 2 minutes to confirm your number!"`
	MsgOTPNotFound    string `env:"MSG_OTP_NOT_FOUND" envDefault:"Пользователь не найден, возможно вы ждали дольше 2 минут. Вернитесь на предыдущий шаг."`
	MsgInviterAdded   string `env:"MSG_INVITER_ADDED" envDefault:"Inviter added!"`
	MsgAlreadyInvited string `env:"MSG_ALREADY_INVITED" envDefault:"ERROR: you already have inviter!"`
	MsgInviteNotFound string `env:"MSG_INVITE_NOT_FOUND" envDefault:"ERROR: the client with code: %s not found."`
	MsgSelfInvite     string `env:"MSG_SELF_INVITE" envDefault:"ERROR: you can not use your own invite code."`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
