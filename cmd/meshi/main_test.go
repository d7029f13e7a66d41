package main

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"meshi/internal/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfig(t *testing.T) string {
	t.Helper()
	tokenFile := filepath.Join(t.TempDir(), "token")
	t.Setenv("MESHI_TOKEN_FILE", tokenFile)
	t.Setenv("MESHI_API_URL", "http://127.0.0.1:1")
	return tokenFile
}

func TestCommands_UsageStartsWithName(t *testing.T) {
	for name, cmd := range commands {
		assert.True(t, strings.HasPrefix(cmd.usage, name), "usage for %q is %q", name, cmd.usage)
		assert.NotNil(t, cmd.run, name)
	}
}

func TestUsage_SortedByName(t *testing.T) {
	var out bytes.Buffer
	usage(&out)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "usage: meshi <command>", lines[0])
	require.Len(t, lines[1:], len(commands))

	var names []string
	for _, line := range lines[1:] {
		names = append(names, strings.Fields(line)[0])
	}
	assert.True(t, sort.StringsAreSorted(names), "%v", names)
}

func TestRun_UsageErrors(t *testing.T) {
	isolateConfig(t)

	tests := []struct {
		name    string
		args    []string
		code    int
		message string
	}{
		{name: "no command", args: nil, code: 2, message: "usage: meshi <command>"},
		{name: "unknown command", args: []string{"bake"}, code: 2, message: "usage: meshi <command>"},
		{name: "login without password", args: []string{"login", "cook@example.com"}, code: 2, message: "usage: meshi login <email> <password>"},
		{name: "reset without email", args: []string{"reset"}, code: 2, message: "usage: meshi reset <email>"},
		{name: "signup missing avatar", args: []string{"signup", "a@b.c", "secret1", "cook"}, code: 2, message: "usage: meshi signup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, stderr.String(), tt.message)
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRun_SessionCommandsNeedSavedToken(t *testing.T) {
	isolateConfig(t)

	for _, name := range []string{"feed", "post", "delete", "logout"} {
		var stdout, stderr bytes.Buffer
		code := run([]string{name}, &stdout, &stderr)
		assert.Equal(t, 1, code, name)
		assert.Contains(t, stderr.String(), "not signed in", name)
	}
}

func TestRun_SignupWithUnreadableAvatar(t *testing.T) {
	isolateConfig(t)

	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "nope.png")
	code := run([]string{"signup", "cook@example.com", "secret1", "cook", missing}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "nope.png")
}

func TestPrintPosts(t *testing.T) {
	var out bytes.Buffer
	at := time.Date(2024, 4, 1, 12, 30, 0, 0, time.Local)
	printPosts(&out, []client.Post{
		{ID: "p2", Timestamp: at, Username: "hana", Text: "shoyu ramen"},
		{ID: "p1", Timestamp: at.Add(-time.Hour), Username: "kenji"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"p2", "04/01", "12:30", "hana", "shoyu", "ramen"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"p1", "04/01", "11:30", "kenji", "-"}, strings.Fields(lines[1]))
}
