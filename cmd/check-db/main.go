package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/env"
	"github.com/troikatech/voice-ivr/pkg/storage"
)

func main() {
	fmt.Println("========================================")
	fmt.Println("Store Connection Diagnostic Tool")
	fmt.Println("========================================")
	fmt.Println()

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Driver: %s\n", cfg.StoreDriver)
	switch cfg.StoreDriver {
	case "postgres":
		fmt.Printf("Database URL: %s\n", maskURL(cfg.DatabaseURL))
	case "mongo":
		fmt.Printf("MongoDB URI: %s\n", maskURL(cfg.MongoURI))
		fmt.Printf("Database Name: %s\n", cfg.DBName)
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println("Test 1: Connecting (schema and indexes are created on connect)...")
	store, err := storage.NewGateway(ctx, storage.Config{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		MongoURI:    cfg.MongoURI,
		DBName:      cfg.DBName,
	}, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		fmt.Println()
		fmt.Println("Check STORE_DRIVER and the matching connection settings in .env")
		os.Exit(1)
	}
	defer store.Close(context.Background())
	fmt.Println("✅ Connected")
	fmt.Println()

	fmt.Println("Test 2: Ping...")
	if err := store.Ping(ctx); err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ OK")
	fmt.Println()

	fmt.Println("Test 3: Reading record counts...")
	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  calls:               %d\n", stats.Calls)
	fmt.Printf("  transcripts:         %d\n", stats.Transcripts)
	fmt.Printf("  suspicious activity: %d\n", stats.SuspiciousActivity)
	fmt.Printf("  queries:             %d\n", stats.Queries)
	fmt.Println()

	fmt.Println("========================================")
	fmt.Println("✅ All checks passed!")
	fmt.Println("========================================")
}

func maskURL(url string) string {
	if len(url) < 20 {
		return url
	}
	return url[:20] + "..."
}
