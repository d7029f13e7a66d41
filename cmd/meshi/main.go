// Command meshi is a terminal client for the meshi feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"meshi/internal/client"
	"meshi/internal/client/remote"

	"github.com/spf13/viper"
)

type cliConfig struct {
	APIURL    string `mapstructure:"MESHI_API_URL"`
	TokenFile string `mapstructure:"MESHI_TOKEN_FILE"`
	Timeout   int    `mapstructure:"MESHI_TIMEOUT_SECONDS"`
}

func loadConfig() (*cliConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MESHI_API_URL", "http://localhost:8375")
	v.SetDefault("MESHI_TIMEOUT_SECONDS", 30)

	tokenFile := ".meshi-token"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, "meshi", "token")
	}
	v.SetDefault("MESHI_TOKEN_FILE", tokenFile)

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

type env struct {
	cfg    *cliConfig
	remote *remote.Client
	app    *client.App
	out    io.Writer
}

// saveToken persists the session so later invocations stay signed in.
func (e *env) saveToken() error {
	if err := os.MkdirAll(filepath.Dir(e.cfg.TokenFile), 0o700); err != nil {
		return err
	}
	return os.WriteFile(e.cfg.TokenFile, []byte(e.remote.Token()), 0o600)
}

// resume signs in with the saved token.
func (e *env) resume(ctx context.Context) error {
	data, err := os.ReadFile(e.cfg.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return errors.New("not signed in; run `meshi guest` or `meshi login`")
	}
	if err != nil {
		return err
	}
	if _, err := e.remote.Resume(ctx, strings.TrimSpace(string(data))); err != nil {
		return fmt.Errorf("saved session rejected: %w", err)
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code: 0 on success,
// 2 for usage errors and 1 for everything else.
func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", 0)
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		usage(stderr)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Print(err)
		return 1
	}

	rc := remote.New(remote.Options{
		BaseURL: cfg.APIURL,
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	})
	defer func() { _ = rc.Close() }()

	alerter := client.AlertFunc(func(msg string) { fmt.Fprintln(stderr, "!", msg) })
	app := client.NewApp(rc.Auth, rc.Documents, rc.Blobs, alerter, client.Options{})
	app.Mount()
	defer app.Unmount()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{cfg: cfg, remote: rc, app: app, out: stdout}
	if cmd.needsSession {
		if err := e.resume(ctx); err != nil {
			logger.Print(err)
			return 1
		}
	}
	if err := cmd.run(ctx, e, args[1:]); err != nil {
		if errors.Is(err, client.ErrSubmitDisabled) {
			logger.Printf("%s: missing or invalid input\nusage: meshi %s", name, cmd.usage)
			return 2
		}
		logger.Print(err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: meshi <command>")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}
