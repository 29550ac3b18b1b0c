package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/config"
	"github.com/ncnu-assistant/dormmail-backend/database"
	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/ncnu-assistant/dormmail-backend/shared"
)

// healthcheck probes the legacy page and the configured cache backend once and exits
// non-zero when anything fails.
func main() {
	fmt.Printf("🏥 Dorm Mail Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.Upstream.HTTPRequestTimeout+10*time.Second)
	defer cancel()

	checks := []struct {
		name string
		run  func(context.Context, *shared.UnifiedConfiguration) (string, error)
	}{
		{"📡 Legacy dorm mail page", checkUpstream},
		{"🗄️  Cache backend", checkCacheBackend},
	}

	healthScore := 0
	for _, check := range checks {
		fmt.Printf("%s: ", check.name)
		detail, err := check.run(ctx, cfg.App)
		if err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
			continue
		}
		fmt.Printf("✅ OK (%s)\n", detail)
		healthScore++
	}

	fmt.Println(strings.Repeat("-", 50))
	if healthScore == len(checks) {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d checks passed\n", healthScore, len(checks))
		return
	}
	fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d checks passed\n", healthScore, len(checks))
	os.Exit(1)
}

func checkUpstream(ctx context.Context, cfg *shared.UnifiedConfiguration) (string, error) {
	factory := shared.NewHTTPClientFactory(cfg.Upstream.HTTPRequestTimeout)
	defer factory.CleanupAllClients()

	html, err := services.NewPageSource(cfg.Upstream, factory).FetchPage(ctx)
	if err != nil {
		return "", err
	}

	records := services.NewTokenMailExtractor(services.NewTokenizer(cfg.Upstream.Tokenizer)).Extract(html)
	return fmt.Sprintf("%d records via %s/%s", len(records), cfg.Upstream.FetchBackend, cfg.Upstream.Tokenizer), nil
}

func checkCacheBackend(ctx context.Context, cfg *shared.UnifiedConfiguration) (string, error) {
	switch cfg.Cache.Backend {
	case shared.CacheBackendRedis:
		client := services.NewRedisClient(cfg.Redis)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return "", err
		}
		size, err := services.NewRedisResponseStore(client).Size(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("redis at %s, %d entries", cfg.Redis.Addr, size), nil

	case shared.CacheBackendPostgres:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return "", err
		}
		defer database.Close(db)
		size, err := services.NewPostgresResponseStore(db).Size(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres, %d entries", size), nil

	default:
		return "in-memory store, nothing to probe", nil
	}
}
