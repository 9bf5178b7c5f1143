//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/application/ingest"
	"project-context-api/internal/application/question"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	"project-context-api/internal/domain/repository"
	"project-context-api/internal/infrastructure/lexical"
	"project-context-api/internal/infrastructure/llm"
	"project-context-api/internal/infrastructure/persistence/postgres"
	"project-context-api/internal/infrastructure/persistence/redis"
	"project-context-api/internal/interfaces/http/handler"
	"project-context-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 HTTP 应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		EmbeddingSet,
		MilvusAppSet,
		LexicalSet,
		OntologySet,
		RetrievalSet,
		ServiceSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化索引 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*WorkerApp, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		EmbeddingSet,
		MilvusAppSet,
		LexicalSet,
		OntologySet,
		RetrievalSet,
		ServiceSet,
		ProvideIngestConsumer,
		wire.Struct(new(WorkerApp), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化 bootstrap 依赖
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapApp, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideMilvusClientOptional,
		ProvideMilvusRepositoryOptional,
		wire.Struct(new(BootstrapApp), "*"),
	)
	return nil, nil, nil
}

// RepoSet PostgreSQL 仓储提供者集合
var RepoSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewEventLogRepository,
	postgres.NewThreadRepository,
	postgres.NewTurnRepository,
	postgres.NewChunkRepository,
	postgres.NewTurnSourceAdapter,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.EventLogRepository), new(*postgres.EventLogRepository)),
	wire.Bind(new(repository.ThreadRepository), new(*postgres.ThreadRepository)),
	wire.Bind(new(repository.TurnRepository), new(*postgres.TurnRepository)),
	wire.Bind(new(repository.ChunkRepository), new(*postgres.ChunkRepository)),
	wire.Bind(new(retrieval.TurnSource), new(*postgres.TurnSourceAdapter)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	wire.Bind(new(question.KVCache), new(*redis.Cache)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// MilvusAppSet 可选 Milvus（不可达时禁用向量检索，不阻塞启动）
var MilvusAppSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideMilvusRepositoryOptional,
	ProvideRetrievalVectorRepositoryOptional,
)

// EmbeddingSet 可选 Embedder（不可用时禁用向量检索/索引）
var EmbeddingSet = wire.NewSet(
	ProvideEmbedderOptional,
)

// LexicalSet 词法索引提供者集合
var LexicalSet = wire.NewSet(
	ProvideLexicalIndex,
	wire.Bind(new(retrieval.LexicalIndex), new(*lexical.Index)),
)

// OntologySet 本体事实协作方提供者集合
var OntologySet = wire.NewSet(
	ProvideFactClientOptional,
)

// RetrievalSet 检索引擎与索引器
var RetrievalSet = wire.NewSet(
	ProvideRetrievalEngine,
	ProvideRetrievalIndexer,
)

// ServiceSet 应用服务提供者集合
var ServiceSet = wire.NewSet(
	eventlog.NewService,
	eventlog.NewProjector,
	ingest.NewService,
	question.NewClassifier,
	question.NewSelector,
	question.NewAssembler,
	question.NewRollingContextManager,
	question.NewService,
	llm.NewEinoFactory,
	ProvideRetrievalConfig,
	ProvideAssemblerConfig,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewHealthHandler,
	handler.NewQuestionHandler,
	handler.NewThreadHandler,
	handler.NewEventHandler,
	handler.NewIngestHandler,
	handler.NewProjectionHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRateLimitMiddleware,
	router.New,
)
