// Package main 初始化存储层：建表与向量集合
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"project-context-api/internal/config"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting storage bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	app, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize storage layer: %v", err)
	}
	defer cleanup()

	// 1. PostgreSQL 建表
	fmt.Println("Migrating postgres tables...")
	if err := app.Pg.DB().WithContext(ctx).AutoMigrate(
		&entity.Event{},
		&entity.Thread{},
		&entity.Turn{},
		&entity.Chunk{},
	); err != nil {
		log.Fatalf("failed to migrate tables: %v", err)
	}
	fmt.Println("Postgres tables ready.")

	// 2. Milvus 集合（不可达时跳过，向量检索保持禁用）
	if app.Vector == nil {
		fmt.Println("Milvus unavailable, skipping vector collection setup.")
	} else {
		fmt.Println("Ensuring milvus context chunks collection...")
		if err := app.Vector.EnsureContextChunksCollection(ctx); err != nil {
			log.Fatalf("failed to ensure milvus collection: %v", err)
		}
		fmt.Println("Milvus collection ready.")
	}

	fmt.Println("Bootstrap completed successfully.")
}
