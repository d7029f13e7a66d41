package seed

import (
	"fmt"
	"log"

	"meshi/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers           int
	NumPosts           int
	MaxCommentsPerPost int
	ShouldClean        bool
	SkipBcrypt         bool
	DryRun             bool
	MaxDays            int
	BatchSize          int
	RandSeed           int64
}

// Result counts what a seeding run created.
type Result struct {
	Users    int
	Posts    int
	Comments int
}

// Seeder fills the feed with generated accounts, posts and comments.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// Seed populates the database with demo data
func Seed(db *gorm.DB, opts Options) (*Result, error) {
	return NewSeeder(db, opts).Run()
}

// Run executes the configured seeding pass.
func (s *Seeder) Run() (*Result, error) {
	log.Printf("Starting database seeding with %d users and %d posts...", s.opts.NumUsers, s.opts.NumPosts)

	if s.opts.ShouldClean && !s.opts.DryRun {
		if err := ClearData(s.db); err != nil {
			log.Printf("Warning: could not clear existing data: %v", err)
		}
	}

	users := make([]*models.User, 0, s.opts.NumUsers)
	for i := 0; i < s.opts.NumUsers; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("failed to create users: %w", err)
		}
		users = append(users, user)
	}
	res := &Result{Users: len(users)}
	if len(users) == 0 {
		return res, nil
	}

	posts := make([]*models.Post, 0, s.opts.NumPosts)
	for i := 0; i < s.opts.NumPosts; i++ {
		posts = append(posts, s.factory.BuildPost(users[s.factory.rng.Intn(len(users))]))
	}
	if err := s.factory.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("failed to create posts: %w", err)
	}
	res.Posts = len(posts)

	var comments []*models.Comment
	if s.opts.MaxCommentsPerPost > 0 {
		for _, post := range posts {
			n := s.factory.rng.Intn(s.opts.MaxCommentsPerPost + 1)
			for j := 0; j < n; j++ {
				comments = append(comments, s.factory.BuildComment(post, users[s.factory.rng.Intn(len(users))]))
			}
		}
	}
	if err := s.factory.CreateCommentsBatch(comments); err != nil {
		return nil, fmt.Errorf("failed to create comments: %w", err)
	}
	res.Comments = len(comments)

	log.Printf("Seeding complete: %d users, %d posts, %d comments", res.Users, res.Posts, res.Comments)
	return res, nil
}

// ClearData removes all feed data and accounts.
func ClearData(db *gorm.DB) error {
	log.Println("Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE comments, posts, upload_sessions, blobs, users RESTART IDENTITY CASCADE;`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"comments", "posts", "upload_sessions", "blobs", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
