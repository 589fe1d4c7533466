package main

import (
	"context"
	"fmt"
	"os"

	"github.com/loykin/railspreview"
	"github.com/loykin/railspreview/pkg/client"
)

// backend is either the in-process App or a running `railspreview serve`.
type backend interface {
	Clone(ctx context.Context, url string) (railspreview.CloneResult, error)
	Repos(ctx context.Context) ([]string, error)
	Launch(ctx context.Context, repo string) (railspreview.LaunchResult, error)
	Stop(ctx context.Context) (railspreview.StopResult, error)
	Status(ctx context.Context) (railspreview.Status, error)
	Recent(ctx context.Context, limit int) ([]railspreview.Event, error)
	Close() error
}

func openBackend(ctx context.Context, flags *GlobalFlags) (backend, error) {
	if flags.APIUrl == "" {
		app, err := openApp(flags)
		if err != nil {
			return nil, err
		}
		return localBackend{app}, nil
	}
	cfg := client.Config{
		BaseURL:  flags.APIUrl,
		Timeout:  flags.APITimeout,
		Username: flags.APIUser,
		Password: os.Getenv("RAILSPREVIEW_API_PASSWORD"),
	}
	if flags.APICACert != "" || flags.APIInsecure {
		cfg.TLS = &client.TLSClientConfig{CACert: flags.APICACert, SkipVerify: flags.APIInsecure}
	}
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	if !c.IsReachable(ctx) {
		return nil, fmt.Errorf("server not reachable at %s - start it with 'railspreview serve'", flags.APIUrl)
	}
	return remoteBackend{c}, nil
}

type localBackend struct{ app *railspreview.App }

func (b localBackend) Clone(ctx context.Context, url string) (railspreview.CloneResult, error) {
	return b.app.Clone(ctx, url), nil
}
func (b localBackend) Repos(context.Context) ([]string, error) { return b.app.Repos() }
func (b localBackend) Launch(ctx context.Context, repo string) (railspreview.LaunchResult, error) {
	return b.app.Launch(ctx, repo), nil
}
func (b localBackend) Stop(ctx context.Context) (railspreview.StopResult, error) {
	return b.app.Stop(ctx), nil
}
func (b localBackend) Status(ctx context.Context) (railspreview.Status, error) {
	return b.app.Status(ctx), nil
}
func (b localBackend) Recent(ctx context.Context, limit int) ([]railspreview.Event, error) {
	return b.app.Recent(ctx, limit)
}
func (b localBackend) Close() error { return b.app.Close() }

type remoteBackend struct{ c *client.Client }

func (b remoteBackend) Clone(ctx context.Context, url string) (railspreview.CloneResult, error) {
	return b.c.Clone(ctx, url)
}
func (b remoteBackend) Repos(ctx context.Context) ([]string, error) { return b.c.Repos(ctx) }
func (b remoteBackend) Launch(ctx context.Context, repo string) (railspreview.LaunchResult, error) {
	return b.c.Start(ctx, repo)
}
func (b remoteBackend) Stop(ctx context.Context) (railspreview.StopResult, error) {
	return b.c.Stop(ctx)
}
func (b remoteBackend) Status(ctx context.Context) (railspreview.Status, error) {
	return b.c.Status(ctx)
}
func (b remoteBackend) Recent(ctx context.Context, limit int) ([]railspreview.Event, error) {
	return b.c.History(ctx, limit)
}
func (b remoteBackend) Close() error { return nil }
