// Command agentcpd is the agent control plane's HTTP server: the DI root
// that wires storage, crypto, authorization, execution, discovery and the
// OAuth2 orchestrator behind internal/app/httpapi's router.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	openai "github.com/sashabaranov/go-openai"

	"github.com/r3e-network/agentcp/internal/app/auth"
	"github.com/r3e-network/agentcp/internal/app/connectors/agentsecrets"
	"github.com/r3e-network/agentcp/internal/app/connectors/e2b"
	"github.com/r3e-network/agentcp/internal/app/connectors/gmail"
	"github.com/r3e-network/agentcp/internal/app/connectors/mock"
	"github.com/r3e-network/agentcp/internal/app/credentialcodec"
	"github.com/r3e-network/agentcp/internal/app/discovery"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/embeddings"
	"github.com/r3e-network/agentcp/internal/app/execution"
	"github.com/r3e-network/agentcp/internal/app/httpapi"
	"github.com/r3e-network/agentcp/internal/app/middleware"
	"github.com/r3e-network/agentcp/internal/app/oauth2"
	"github.com/r3e-network/agentcp/internal/app/policy"
	"github.com/r3e-network/agentcp/internal/app/services/authz"
	"github.com/r3e-network/agentcp/internal/app/services/controlplane"
	"github.com/r3e-network/agentcp/internal/app/services/credentials"
	"github.com/r3e-network/agentcp/internal/app/services/quota"
	"github.com/r3e-network/agentcp/internal/app/storage"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
	"github.com/r3e-network/agentcp/internal/app/storage/postgres"
	"github.com/r3e-network/agentcp/internal/app/system"
	"github.com/r3e-network/agentcp/internal/crypto"
	"github.com/r3e-network/agentcp/internal/platform/database"
	"github.com/r3e-network/agentcp/internal/platform/migrations"
	"github.com/r3e-network/agentcp/pkg/config"
	"github.com/r3e-network/agentcp/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	configPath := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	flag.Parse()

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	appLog := logger.New(cfg.Logging)

	cryptoSvc := mustCrypto(cfg)
	if err := cryptoSvc.SelfTest(); err != nil {
		appLog.Fatalf("crypto self-test failed: %v", err)
	}
	codec := credentialcodec.New(cryptoSvc)

	rootCtx := context.Background()
	dsnVal := resolveDSN(*dsn, cfg)

	var (
		db    *sql.DB
		store storage.Store
	)
	if dsnVal != "" {
		db, err = database.Open(rootCtx, dsnVal)
		if err != nil {
			appLog.Fatalf("connect to postgres: %v", err)
		}
		configurePool(db, cfg)
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				appLog.Fatalf("apply migrations: %v", err)
			}
		}
		store = postgres.New(db)
	} else {
		appLog.Warn("no DSN configured; using in-memory storage")
		store = memory.New()
	}
	if db != nil {
		defer db.Close()
	}

	quotaSvc := quota.New(store, quota.Limits{
		MaxProjectsPerOrg:   cfg.Runtime.Quota.MaxProjectsPerOrg,
		MaxAgentsPerProject: cfg.Runtime.Quota.MaxAgentsPerProject,
		DailyExecutionQuota: cfg.Runtime.Quota.DailyExecutionQuota,
	})
	authzPipeline := authz.New(store, cryptoSvc, quotaSvc)

	oauthManager := oauth2.New(cryptoSvc)
	refresher := oauth2.CredentialRefresher{Manager: oauthManager}
	resolver := credentials.New(codec, refresher, store)

	// execution.RESTClient binds a single security scheme at construction
	// time; Apps vary their scheme per-request, so the resolver injects
	// the actual credential into the request before dispatch and this
	// client only needs to know how to send an already-authorized
	// request. See DESIGN.md for the scheme-binding limitation this
	// leaves unresolved for API-key default-location quirks.
	restClient := execution.NewRESTClient(http.DefaultClient, securityscheme.Scheme{Kind: securityscheme.KindNoAuth})
	registry := execution.NewRegistry(map[string]execution.Connector{
		"agent_secrets": agentsecrets.New(store),
		"e2b":           e2b.New(http.DefaultClient),
		"gmail":         gmail.New(http.DefaultClient),
		"mock":          mock.New(),
	})
	engine := execution.New(restClient, registry)

	judge := policy.New(cfg.Runtime.Policy.APIKey, cfg.Runtime.Policy.JudgeModel, appLog)

	embedModel := openai.EmbeddingModel(cfg.Runtime.Embeddings.Model)
	embedder := embeddings.New(cfg.Runtime.Embeddings.APIKey, embedModel, cfg.Runtime.Embeddings.Dimensions)
	discoverySvc := discovery.New(store, embedder)

	svc := controlplane.New(store, cryptoSvc, codec, authzPipeline, quotaSvc, resolver, engine, judge, embedder, discoverySvc, appLog)

	quotaSweeper := cron.New()
	if _, err := quotaSweeper.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		reset, err := quotaSvc.ResetAllDue(ctx)
		if err != nil {
			appLog.Errorf("quota sweep: %v", err)
			return
		}
		appLog.Infof("quota sweep: reset %d project(s)", reset)
	}); err != nil {
		appLog.Fatalf("schedule quota sweep: %v", err)
	}
	quotaSweeper.Start()
	defer quotaSweeper.Stop()

	rateLimiter := middleware.New(middleware.Config{
		PerSecondLimit: cfg.Runtime.RateLimit.PerSecondLimit,
		PerDayLimit:    cfg.Runtime.RateLimit.PerDayLimit,
		RedisAddr:      cfg.Runtime.RateLimit.RedisAddr,
	})
	defer rateLimiter.Stop()

	jwtManager := mustJWTManager(cfg)

	checker := system.NewChecker(system.Check{
		Name: "crypto",
		Run:  func(context.Context) error { return cryptoSvc.SelfTest() },
	})
	if db != nil {
		checker.Add(system.Check{
			Name: "database",
			Run:  func(ctx context.Context) error { return db.PingContext(ctx) },
		})
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Service:            svc,
		OAuth2:             oauthManager,
		OAuth2RedirectBase: cfg.Runtime.OAuth2.RedirectBaseURL,
		JWT:                jwtManager,
		RateLimiter:        rateLimiter,
		Health:             checker,
	})

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{Addr: listenAddr, Handler: router}

	go func() {
		appLog.Infof("agentcp listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Fatalf("shutdown: %v", err)
	}
}

func resolveConfig(configPath string) (*config.Config, error) {
	if trimmed := strings.TrimSpace(configPath); trimmed != "" {
		return loadConfigFile(trimmed)
	}
	return config.Load()
}

func loadConfigFile(path string) (*config.Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return config.LoadFile(path)
	case ".json":
		return config.LoadConfig(path)
	default:
		if cfg, err := config.LoadFile(path); err == nil {
			return cfg, nil
		}
		return config.LoadConfig(path)
	}
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_URL")); envDSN != "" {
		return envDSN
	}
	if cfg.Database.DSN != "" {
		return strings.TrimSpace(cfg.Database.DSN)
	}
	if cfg.Database.Host != "" && cfg.Database.Name != "" {
		return cfg.Database.ConnectionString()
	}
	return ""
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if addr := strings.TrimSpace(flagAddr); addr != "" {
		return addr
	}
	host := strings.TrimSpace(cfg.Server.Host)
	port := cfg.Server.Port
	if port != 0 {
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, port)
	}
	return ":8080"
}

func mustCrypto(cfg *config.Config) *crypto.Service {
	masterKey, err := decodeKey(cfg.Runtime.Crypto.MasterKeyBase64)
	if err != nil {
		log.Fatalf("invalid crypto master key: %v", err)
	}
	svc, err := crypto.New(masterKey, []byte(cfg.Runtime.Crypto.HMACSecret))
	if err != nil {
		log.Fatalf("initialise crypto: %v", err)
	}
	return svc
}

func decodeKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("CRYPTO_MASTER_KEY_BASE64 must be set")
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("master key must decode to 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

func mustJWTManager(cfg *config.Config) auth.JWTManager {
	manager := auth.NewSupabaseManager(cfg.Auth.SupabaseJWTSecret, cfg.Auth.SupabaseJWTAud)
	if manager == nil {
		log.Fatal("SUPABASE_JWT_SECRET must be set to authenticate the admin surface")
	}
	return manager
}
