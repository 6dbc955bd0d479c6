// Package contains the cascade service wiring: configuration, store
// backends, garbage collection schedule and the HTTP surface.
package main

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/aws_s3"
	"github.com/sharedcode/cascade/cache"
	"github.com/sharedcode/cascade/cassandra"
	"github.com/sharedcode/cascade/common"
	"github.com/sharedcode/cascade/fs"
	"github.com/sharedcode/cascade/gc"
	"github.com/sharedcode/cascade/redis"
	"github.com/sharedcode/cascade/restapi"
	"github.com/sharedcode/cascade/restapi/docs"
)

// Blob cache tuning; small nodes are worth keeping hot, large ones are not.
const (
	blobCacheExistenceSize = 10000
	blobCacheExpiry        = 15 * time.Minute
	blobCacheMaxSize       = 256 * 1024
)

// @BasePath /api

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a token, or use the signed-request headers.
func main() {
	cascade.ConfigureLogging()
	cfg := cascade.LoadConfig()
	ctx := context.Background()

	if _, err := cassandra.OpenConnection(cassandra.Config{
		ClusterHosts: envList("CASCADE_CASSANDRA_HOSTS", "localhost"),
		Keyspace:     envStr("CASCADE_CASSANDRA_KEYSPACE", "cascade"),
	}); err != nil {
		log.Error(fmt.Sprintf("can't connect to Cassandra, details: %v", err))
		os.Exit(1)
	}
	defer cassandra.CloseConnection()

	if _, err := redis.OpenConnection(redis.Options{
		Address:  envStr("CASCADE_REDIS_ADDRESS", "localhost:6379"),
		Password: os.Getenv("CASCADE_REDIS_PASSWORD"),
	}); err != nil {
		log.Error(fmt.Sprintf("can't connect to Redis, details: %v", err))
		os.Exit(1)
	}
	defer redis.CloseConnection()
	l2 := redis.NewClient()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Error(fmt.Sprintf("can't open the %s blob backend, details: %v", cfg.BlobBackend, err))
		os.Exit(1)
	}
	blobs = cache.NewCachedBlobStore(blobs, l2, blobCacheExistenceSize, blobCacheExpiry, blobCacheMaxSize)

	stores := common.Stores{
		Blobs:     blobs,
		Ownership: cassandra.NewCachedOwnershipLedger(l2),
		Refs:      cassandra.NewRefCounter(),
		Usage:     cassandra.NewUsageMeter(),
		Tokens:    cassandra.NewCachedTokenStore(l2),
		Commits:   cassandra.NewCommitStore(),
		Depots:    cassandra.NewDepotStore(),
	}
	svc := common.NewService(cfg, stores)

	var jwtVerifier *auth.JWTVerifier
	if cfg.IdPIssuer != "" {
		jwtVerifier = auth.NewJWTVerifier(ctx, cfg.IdPIssuer, cfg.IdPClientID)
	}
	pubkeys := cassandra.NewPubkeyStore()
	resolver := auth.NewResolver(pubkeys, stores.Tokens, jwtVerifier)
	enrolment := auth.NewEnrolment(cassandra.NewPendingAuthStore(), pubkeys)

	collector := gc.NewCollector(cfg, stores.Blobs, stores.Ownership, stores.Refs, stores.Usage)
	tr := cascade.NewTaskRunner(ctx, 1)
	tr.Go(func() error {
		collector.Loop(tr.GetContext())
		return nil
	})

	docs.SwaggerInfo.BasePath = "/api"
	server := restapi.NewServer(cfg, svc, resolver, enrolment, pubkeys, l2)
	if err := server.Run(); err != nil {
		log.Error(fmt.Sprintf("HTTP server stopped, details: %v", err))
		os.Exit(1)
	}
}

// openBlobStore selects the backend named by the configuration.
func openBlobStore(ctx context.Context, cfg cascade.Config) (cascade.BlobStore, error) {
	switch cfg.BlobBackend {
	case "fs":
		return fs.NewBlobStore(cfg.BlobBasePath, fs.DefaultToFilePath), nil
	case "s3":
		region := envStr("CASCADE_S3_REGION", "us-east-1")
		client := aws_s3.Connect(aws_s3.Config{
			HostEndpointUrl: os.Getenv("CASCADE_S3_ENDPOINT"),
			Region:          region,
			Username:        os.Getenv("CASCADE_S3_USERNAME"),
			Password:        os.Getenv("CASCADE_S3_PASSWORD"),
		})
		if os.Getenv("CASCADE_S3_CREATE_BUCKET") == "true" {
			mb, err := aws_s3.NewManageBucket(client, region)
			if err != nil {
				return nil, err
			}
			if err := mb.CreateBlobStore(ctx, cfg.BlobBucket); err != nil {
				return nil, err
			}
		}
		return aws_s3.NewBlobStore(client, cfg.BlobBucket)
	case "cassandra":
		return cassandra.NewBlobStore(), nil
	}
	return nil, fmt.Errorf("unknown blob backend %s", cfg.BlobBackend)
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envList(name, fallback string) []string {
	v := os.Getenv(name)
	if v == "" {
		v = fallback
	}
	return strings.Split(v, ",")
}
