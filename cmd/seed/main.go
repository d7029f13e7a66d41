// Command seed fills the database with demo accounts, posts and comments.
package main

import (
	"flag"
	"log"

	"meshi/internal/config"
	"meshi/internal/database"
	"meshi/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	maxComments := flag.Int("comments", 5, "Maximum comments per post")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fixture := flag.String("fixture", "", "Load a fixture (embedded name like \"demo\" or a .yml path) instead of random data")
	dryRun := flag.Bool("dry-run", false, "Build entities without writing them")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		NumUsers:           *numUsers,
		NumPosts:           *numPosts,
		MaxCommentsPerPost: *maxComments,
		ShouldClean:        *shouldClean,
		DryRun:             *dryRun,
	}

	if *fixture != "" {
		fx, err := seed.LoadFixture(*fixture)
		if err != nil {
			log.Fatalf("Fixture load failed: %v", err)
		}
		if *shouldClean {
			if err := seed.ClearData(db); err != nil {
				log.Fatalf("Cleanup failed: %v", err)
			}
		}
		res, err := seed.NewSeeder(db, opts).ApplyFixture(fx)
		if err != nil {
			log.Fatalf("Fixture seeding failed: %v", err)
		}
		log.Printf("Fixture %q applied: %d users, %d posts, %d comments", *fixture, res.Users, res.Posts, res.Comments)
	} else {
		log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)
		if _, err := seed.Seed(db, opts); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	log.Printf("All test users have the password: %s", seed.DefaultPassword)
}
