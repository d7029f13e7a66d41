package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"meshi/internal/client"
)

type command struct {
	usage        string
	needsSession bool
	run          func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"guest":   {"guest", false, runGuest},
	"login":   {"login <email> <password>", false, runLogin},
	"signup":  {"signup <email> <password> <display-name> <avatar-file>", false, runSignup},
	"reset":   {"reset <email>", false, runReset},
	"logout":  {"logout", true, runLogout},
	"feed":    {"feed", true, runFeed},
	"watch":   {"watch", true, runWatch},
	"post":    {"post <image-file> [caption...]", true, runPost},
	"comment": {"comment <post-id> <text...>", true, runComment},
	"delete":  {"delete <post-id>", true, runDelete},
}

func runGuest(ctx context.Context, e *env, _ []string) error {
	id, err := e.remote.Auth.SignInGuest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "signed in as %s\n", id.DisplayName)
	return e.saveToken()
}

func runLogin(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return client.ErrSubmitDisabled
	}
	creds := e.app.Credentials
	creds.SetEmail(args[0])
	creds.SetPassword(args[1])
	if err := creds.SignIn(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "signed in as %s\n", e.app.Session.Current().DisplayName)
	return e.saveToken()
}

func runSignup(ctx context.Context, e *env, args []string) error {
	if len(args) < 4 {
		return client.ErrSubmitDisabled
	}
	avatar, err := readFile(args[3])
	if err != nil {
		return err
	}
	creds := e.app.Credentials
	creds.ToggleMode()
	creds.SetEmail(args[0])
	creds.SetPassword(args[1])
	creds.SetUsername(args[2])
	creds.SelectAvatar(avatar)
	if err := creds.SignUp(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "welcome, %s\n", e.app.Session.Current().DisplayName)
	return e.saveToken()
}

func runReset(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 {
		return client.ErrSubmitDisabled
	}
	creds := e.app.Credentials
	creds.OpenReset()
	creds.SetResetEmail(args[0])
	if err := creds.SubmitReset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "password reset mail sent")
	return nil
}

func runLogout(ctx context.Context, e *env, _ []string) error {
	if err := e.app.SignOut(ctx); err != nil {
		return err
	}
	return os.Remove(e.cfg.TokenFile)
}

func runFeed(ctx context.Context, e *env, _ []string) error {
	posts, err := e.remote.Documents.ListPosts(ctx)
	if err != nil {
		return err
	}
	printPosts(e.out, posts)
	return nil
}

// runWatch prints every feed snapshot until interrupted.
func runWatch(ctx context.Context, e *env, _ []string) error {
	release, err := e.remote.Documents.SubscribeFeed(func(posts []client.Post) {
		fmt.Fprintf(e.out, "--- %s, %d posts\n", time.Now().Format(time.TimeOnly), len(posts))
		printPosts(e.out, posts)
	})
	if err != nil {
		return err
	}
	defer release()
	<-ctx.Done()
	return nil
}

func runPost(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 {
		return client.ErrSubmitDisabled
	}
	image, err := readFile(args[0])
	if err != nil {
		return err
	}
	composer := client.NewComposer(e.app.Session, e.remote.Documents, e.remote.Blobs, nil, client.Options{})
	composer.SelectImage(image)
	composer.SetText(strings.Join(args[1:], " "))
	id, err := composer.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "posted %s\n", id)
	return nil
}

func runComment(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return client.ErrSubmitDisabled
	}
	item := client.NewPostItem(e.app.Session, e.remote.Documents, nil, client.Post{ID: args[0]}, client.Options{})
	item.SetCommentText(strings.Join(args[1:], " "))
	return item.SubmitComment(ctx)
}

func runDelete(ctx context.Context, e *env, args []string) error {
	if len(args) < 1 {
		return client.ErrSubmitDisabled
	}
	return e.remote.Documents.DeletePost(ctx, args[0])
}

func readFile(path string) (client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.File{}, err
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return client.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

func printPosts(out io.Writer, posts []client.Post) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range posts {
		caption := p.Text
		if caption == "" {
			caption = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Timestamp.Local().Format("01/02 15:04"), p.Username, caption)
	}
	_ = w.Flush()
}
