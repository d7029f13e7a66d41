// Package bootstrap wires the process-level dependencies shared by the
// server and the operator commands.
package bootstrap

import (
	"fmt"
	"log"

	"meshi/internal/cache"
	"meshi/internal/config"
	"meshi/internal/database"
	"meshi/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// DemoFixture names a seed fixture to load when the feed is empty.
	DemoFixture string
}

// InitRuntime connects to the database and Redis and optionally loads demo
// data. The Redis client is nil when Redis is not configured or unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.DemoFixture != "" {
		if err := loadDemoFixture(db, cfg, opts.DemoFixture); err != nil {
			return nil, nil, fmt.Errorf("failed to load demo fixture: %w", err)
		}
	}

	return db, r, nil
}

func loadDemoFixture(db *gorm.DB, cfg *config.Config, name string) error {
	if cfg.IsProduction() {
		log.Printf("skipping demo fixture %q in %s", name, cfg.Env)
		return nil
	}

	var posts int64
	if err := db.Table("posts").Count(&posts).Error; err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}

	fx, err := seed.LoadFixture(name)
	if err != nil {
		return err
	}
	res, err := seed.NewSeeder(db, seed.Options{}).ApplyFixture(fx)
	if err != nil {
		return err
	}
	log.Printf("demo fixture %q loaded: %d posts, %d comments", name, res.Posts, res.Comments)
	return nil
}
