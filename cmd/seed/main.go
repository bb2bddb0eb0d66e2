// seed inserts a demo phone user with a completed profile for local testing.
// Idempotent: does nothing if the demo user already exists.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imaro-auth/backend/internal/config"
	"imaro-auth/backend/internal/db"
	identitydomain "imaro-auth/backend/internal/identity/domain"
	"imaro-auth/backend/internal/logger"
	userdomain "imaro-auth/backend/internal/user/domain"
	"imaro-auth/backend/internal/user/repository"
)

const demoPhone = "+919876543210"

func main() {
	cfg, err := config.LoadDatabase()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	users := repository.NewPostgresRepository(pool)
	externalID := identitydomain.PhoneSubject(demoPhone)

	existing, err := users.GetByExternalID(ctx, externalID)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	if existing != nil {
		log.Info("seed already applied; skipping", zap.String("user_id", existing.ID))
		return
	}

	age := 28
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:               uuid.NewString(),
		ExternalID:       externalID,
		AuthMethod:       userdomain.AuthMethodPhone,
		Phone:            demoPhone,
		FirstName:        "Demo",
		LastName:         "User",
		Age:              &age,
		Gender:           userdomain.GenderPreferNotToSay,
		Country:          "IND",
		Active:           true,
		PhoneVerified:    true,
		ProfileCompleted: true,
		PrivacyAccepted:  true,
		TermsAccepted:    true,
		PrivacyVersion:   cfg.PrivacyPolicyVersion,
		TermsVersion:     cfg.TermsVersion,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := u.Validate(); err != nil {
		log.Fatal("demo user invalid", zap.Error(err))
	}
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Info("demo user created concurrently; skipping")
			return
		}
		log.Fatal("create demo user", zap.Error(err))
	}
	log.Info("seeded demo user", zap.String("user_id", u.ID), zap.String("phone", logger.MaskPhone(demoPhone)))
}
