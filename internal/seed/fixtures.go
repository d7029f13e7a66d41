package seed

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"meshi/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed fixtures/*.yml
var fixtureFS embed.FS

// Fixture is a hand-written feed: accounts with their posts and the comments
// left on them.
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
}

type FixtureUser struct {
	Email       string        `yaml:"email"`
	DisplayName string        `yaml:"display_name"`
	AvatarURL   string        `yaml:"avatar_url"`
	Posts       []FixturePost `yaml:"posts"`
}

type FixturePost struct {
	Text       string           `yaml:"text"`
	Image      string           `yaml:"image"`
	MinutesAgo int              `yaml:"minutes_ago"`
	Comments   []FixtureComment `yaml:"comments"`
}

type FixtureComment struct {
	By   string `yaml:"by"`
	Text string `yaml:"text"`
}

// LoadFixture reads a fixture by name from the embedded set ("demo") or from
// a .yml path on disk.
func LoadFixture(name string) (*Fixture, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
		data, err = os.ReadFile(name)
	} else {
		data, err = fixtureFS.ReadFile("fixtures/" + name + ".yml")
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture %q: %w", name, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and checks a fixture document.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	known := make(map[string]bool, len(fx.Users))
	for _, u := range fx.Users {
		if u.Email == "" || u.DisplayName == "" {
			return nil, fmt.Errorf("fixture user needs email and display_name")
		}
		known[strings.ToLower(u.Email)] = true
	}
	for _, u := range fx.Users {
		for _, p := range u.Posts {
			if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.Image) == "" {
				return nil, fmt.Errorf("post by %s needs text or image", u.Email)
			}
			for _, c := range p.Comments {
				if !known[strings.ToLower(c.By)] {
					return nil, fmt.Errorf("comment author %q is not a fixture user", c.By)
				}
			}
		}
	}
	return &fx, nil
}

// ApplyFixture writes fx in one transaction. Accounts that already exist are
// reused so the fixture can be applied on top of other data.
func (s *Seeder) ApplyFixture(fx *Fixture) (*Result, error) {
	res := &Result{}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		users := make(map[string]*models.User, len(fx.Users))
		for _, fu := range fx.Users {
			email := strings.ToLower(fu.Email)
			user := models.User{
				Email:       email,
				Password:    s.factory.password(),
				DisplayName: fu.DisplayName,
				AvatarURL:   fu.AvatarURL,
				Provider:    models.ProviderPassword,
			}
			if err := tx.Where(models.User{Email: email}).Attrs(user).FirstOrCreate(&user).Error; err != nil {
				return err
			}
			users[email] = &user
			res.Users++
		}

		for _, fu := range fx.Users {
			author := users[strings.ToLower(fu.Email)]
			for _, fp := range fu.Posts {
				post := &models.Post{
					UserID:    author.ID,
					Avatar:    author.AvatarURL,
					Username:  author.DisplayName,
					Text:      fp.Text,
					Image:     fp.Image,
					CreatedAt: now.Add(-time.Duration(fp.MinutesAgo) * time.Minute),
				}
				if err := tx.Create(post).Error; err != nil {
					return err
				}
				res.Posts++

				for i, fc := range fp.Comments {
					by := users[strings.ToLower(fc.By)]
					comment := &models.Comment{
						PostID:    post.ID,
						UserID:    by.ID,
						Avatar:    by.AvatarURL,
						Username:  by.DisplayName,
						Text:      fc.Text,
						CreatedAt: post.CreatedAt.Add(time.Duration(i+1) * time.Minute),
					}
					if err := tx.Create(comment).Error; err != nil {
						return err
					}
					res.Comments++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply fixture: %w", err)
	}
	return res, nil
}
