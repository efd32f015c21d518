// Command createsuperuser provisiona una cuenta staff/superuser ya activa,
// con password hasheado. Las cuentas regulares nunca usan password; este hash
// existe solo para herramientas administrativas.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"invite-auth/internal/config"
	"invite-auth/internal/db"
	"invite-auth/internal/domain"
	"invite-auth/internal/phone"
	"invite-auth/internal/repository"
	"invite-auth/internal/service"
)

func main() {
	phoneFlag := flag.String("phone", "", "numero de telefono en formato internacional")
	passwordFlag := flag.String("password", "", "password del superusuario")
	flag.Parse()

	if *phoneFlag == "" || *passwordFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: createsuperuser -phone +77777777777 -password <secret>")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e164, err := phone.Canonicalize(*phoneFlag, cfg.PhoneDefaultRegion)
	if err != nil {
		logger.Fatal("invalid phone number", zap.String("phone", *phoneFlag))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*passwordFlag), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("hash password", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	accounts := repository.NewPgAccountRepository(pool)
	var codes service.CodeGenerator
	inviteCode, err := codes.InviteCode(service.DefaultInviteCodeLength)
	if err != nil {
		logger.Fatal("generate invite code", zap.Error(err))
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		PhoneNumber:  e164,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		PasswordHash: string(hash),
		InviteCode:   &inviteCode,
		CreatedAt:    time.Now().UTC(),
	}
	if err := accounts.Create(ctx, account); err != nil {
		logger.Fatal("create superuser", zap.Error(err))
	}

	logger.Info("superuser created",
		zap.String("phone", e164),
		zap.String("invite_code", inviteCode),
	)
}
