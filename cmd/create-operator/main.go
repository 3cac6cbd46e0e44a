package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ezac101/chainmail/internal/auth"
	"github.com/ezac101/chainmail/internal/config"
	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
	"github.com/ezac101/chainmail/internal/storage/memory"
	"github.com/ezac101/chainmail/internal/storage/postgres"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-operator <username> <password> [super|operator]")
		os.Exit(1)
	}

	username := os.Args[1]
	password := os.Args[2]
	roleStr := "operator"
	if len(os.Args) >= 4 {
		roleStr = os.Args[3]
	}

	var role domain.OperatorRole
	if roleStr == "super" {
		role = domain.RoleSuper
	} else {
		role = domain.RoleOperator
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 创建存储
	var store storage.Store
	if cfg.Database.DSN != "" {
		store, err = postgres.NewStore(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			fmt.Printf("Failed to open storage: %v\n", err)
			os.Exit(1)
		}
	} else {
		// 内存存储只在当前进程有效，仅用于演示
		store = memory.NewStore()
	}
	defer store.Close()

	authService := auth.NewService(store)

	op, err := authService.Register(auth.RegisterInput{
		Username: username,
		Password: password,
		Role:     role,
	})
	if err != nil {
		fmt.Printf("Failed to create operator: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ 运营账户已创建")
	fmt.Printf("  ID:       %s\n", op.ID)
	fmt.Printf("  Username: %s\n", op.Username)
	fmt.Printf("  Role:     %s\n", op.Role)
	fmt.Printf("  Created:  %s\n", op.CreatedAt.Format(time.RFC3339))
}
