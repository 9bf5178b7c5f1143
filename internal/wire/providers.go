// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/ingest"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	"project-context-api/internal/domain/repository"
	"project-context-api/internal/infrastructure/embedding"
	"project-context-api/internal/infrastructure/lexical"
	"project-context-api/internal/infrastructure/messaging"
	"project-context-api/internal/infrastructure/ontology"
	"project-context-api/internal/infrastructure/persistence/milvus"
	"project-context-api/internal/infrastructure/persistence/postgres"
	"project-context-api/internal/infrastructure/persistence/redis"
	"project-context-api/internal/interfaces/http/middleware"
	"project-context-api/pkg/logger"
)

// ProvidePostgresClient 创建 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 创建 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 创建消息生产者
func ProvideMessagingProducer(client *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(client.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideMilvusClientOptional 创建 Milvus 客户端
// 连接失败时降级返回 nil，向量检索能力整体禁用，不阻塞启动
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func()) {
	client, err := milvus.NewClient(ctx, &cfg.Database.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus 不可用，向量检索已禁用", "error", err.Error())
		return nil, func() {}
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup
}

// ProvideMilvusRepositoryOptional 创建向量仓储，客户端缺失时返回 nil
func ProvideMilvusRepositoryOptional(client *milvus.Client) *milvus.Repository {
	if client == nil {
		return nil
	}
	return milvus.NewRepository(client)
}

// ProvideRetrievalVectorRepositoryOptional 将向量仓储适配为检索端口，仓储缺失时返回 nil 接口
func ProvideRetrievalVectorRepositoryOptional(repo *milvus.Repository) retrieval.VectorRepository {
	if repo == nil {
		return nil
	}
	return milvus.NewRetrievalVectorRepository(repo)
}

// ProvideEmbedderOptional 创建 Embedder
// provider 为 http 时走自托管 embedding 服务，否则走 OpenAI 兼容接口
// 初始化失败时降级返回 nil，检索引擎据此跳过语义通道
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	if cfg.Embedding.Provider == "http" {
		return embedding.NewClient(&cfg.Embedding)
	}
	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedder 不可用，语义检索已禁用", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideLexicalIndex 创建词法倒排索引
func ProvideLexicalIndex(cfg *config.Config) (*lexical.Index, func(), error) {
	idx, err := lexical.NewIndex(&cfg.Lexical)
	if err != nil {
		return nil, nil, fmt.Errorf("open lexical index: %w", err)
	}
	cleanup := func() {
		_ = idx.Close()
	}
	return idx, cleanup, nil
}

// ProvideFactClientOptional 创建本体事实协作方客户端，未启用时返回 nil
func ProvideFactClientOptional(cfg *config.Config) retrieval.FactClient {
	if !cfg.Ontology.Enabled {
		return nil
	}
	return ontology.NewClient(&cfg.Ontology)
}

// ProvideRetrievalEngine 组装检索引擎
func ProvideRetrievalEngine(
	cfg *config.Config,
	lexicalIdx *lexical.Index,
	vector retrieval.VectorRepository,
	embedder einoembedding.Embedder,
	facts retrieval.FactClient,
	turns retrieval.TurnSource,
) *retrieval.Engine {
	return retrieval.NewEngine(
		lexicalIdx,
		vector,
		embedder,
		facts,
		turns,
		cfg.Retrieval.FanoutTimeout,
		cfg.Retrieval.SimilarityFloor,
	)
}

// ProvideRetrievalIndexer 组装文档索引器
func ProvideRetrievalIndexer(
	cfg *config.Config,
	embedder einoembedding.Embedder,
	vector retrieval.VectorRepository,
	lexicalIdx *lexical.Index,
	chunks repository.ChunkRepository,
) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, vector, lexicalIdx, chunks, cfg.Embedding.BatchSize)
}

// ProvideRetrievalConfig 暴露检索配置子段
func ProvideRetrievalConfig(cfg *config.Config) *config.RetrievalConfig {
	return &cfg.Retrieval
}

// ProvideAssemblerConfig 暴露装配器配置子段
func ProvideAssemblerConfig(cfg *config.Config) *config.AssemblerConfig {
	return &cfg.Assembler
}

// ProvideRateLimitMiddleware 创建基于 Redis 滑动窗口的限流中间件
func ProvideRateLimitMiddleware(cfg *config.Config, client *redis.Client) gin.HandlerFunc {
	return middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
		Enabled:           cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             cfg.Security.RateLimit.Burst,
	}, client.Redis())
}

// ProvideIngestConsumer 创建索引 worker 的消费者并注册处理函数
func ProvideIngestConsumer(client *redis.Client, cfg *config.Config, svc *ingest.Service) *messaging.Consumer {
	mc := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamChunkIngest,
		Group:         messaging.ConsumerGroupIndexWorker,
		ConsumerName:  consumerName(),
		BlockTimeout:  mc.BlockTimeout,
		ClaimInterval: mc.ClaimInterval,
		RetryLimit:    mc.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    mc.RetryBackoff.Initial,
			Max:        mc.RetryBackoff.Max,
			Multiplier: mc.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler("chunk_ingest", svc.HandleChunkIngest)
	return consumer
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("index-worker-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
