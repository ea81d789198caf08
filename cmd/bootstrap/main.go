package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/wire"
	"theme-gen-ai-api/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Security.JWT.Secret == "" {
		log.Fatalf("security.jwt.secret must be set")
	}

	ctx := context.Background()

	// 2. 初始化 PostgreSQL 并同步表结构
	pg, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize postgres: %v", err)
	}
	defer cleanup()

	if err := pg.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 3. 签发管理员 Token
	adminID := os.Getenv("BOOTSTRAP_ADMIN_ID")
	if adminID == "" {
		adminID = "admin"
	}

	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
	pair, err := jwtManager.GenerateTokenPair(utils.ActorGrant{
		ActorID:    adminID,
		Role:       "admin",
		DailyLimit: entity.UnlimitedQuota,
		Premium:    true,
	}, cfg.Security.JWT.Expiration, cfg.Security.JWT.RefreshExpiration)
	if err != nil {
		log.Fatalf("failed to issue admin token: %v", err)
	}

	fmt.Printf("Admin actor: %s\n", adminID)
	fmt.Printf("Access token: %s\n", pair.AccessToken)
	fmt.Printf("Refresh token: %s\n", pair.RefreshToken)
	fmt.Println("Bootstrap completed successfully.")
}
