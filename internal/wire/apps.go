// Package wire 提供依赖注入配置
package wire

import (
	"project-context-api/internal/application/ingest"
	"project-context-api/internal/infrastructure/messaging"
	"project-context-api/internal/infrastructure/persistence/milvus"
	"project-context-api/internal/infrastructure/persistence/postgres"
	"project-context-api/internal/infrastructure/persistence/redis"
)

// WorkerApp 索引 worker 的依赖容器
type WorkerApp struct {
	Consumer *messaging.Consumer
	Ingest   *ingest.Service
	Redis    *redis.Client
}

// BootstrapApp 初始化建表所需的依赖容器
type BootstrapApp struct {
	Pg     *postgres.Client
	Vector *milvus.Repository
}
