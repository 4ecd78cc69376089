package main

import (
	"fmt"
	"log"

	"github.com/ducminhle/gridnote/internal/config"
	"github.com/ducminhle/gridnote/internal/model"
	"github.com/ducminhle/gridnote/internal/repository"
	"github.com/ducminhle/gridnote/pkg/auth"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// Load config
	cfg := config.Load()

	// Force DB logging off to avoid noise
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to Database")

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	userRepo := repository.NewUserRepository(db)

	// Common password for all users
	password := "password123"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	// Create 5 users and print a dev session token for each
	log.Println("🌱 Seeding 5 users...")

	for i := 1; i <= 5; i++ {
		email := fmt.Sprintf("user%d@gridnote.local", i)

		user, err := userRepo.FindByEmail(email)
		if err != nil {
			log.Printf("❌ Failed to look up %s: %v", email, err)
			continue
		}
		if user == nil {
			user = &model.User{
				Email:    email,
				Password: string(hashedPassword),
			}
			if err := userRepo.Create(user); err != nil {
				log.Printf("❌ Failed to create %s: %v", email, err)
				continue
			}
			log.Printf("✅ Created user: %s", email)
		} else {
			log.Printf("🔄 User already exists: %s", email)
		}

		token, err := jwtManager.GenerateToken(user.ID, user.Email)
		if err != nil {
			log.Printf("❌ Failed to generate session token for %s: %v", email, err)
			continue
		}
		fmt.Printf("  %s\n  cookie: %s=%s\n", email, auth.SessionCookieName, token)
	}

	log.Println("🎉 Seeding complete (password for all users: password123)")
}
