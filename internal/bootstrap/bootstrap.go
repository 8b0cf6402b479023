// Package bootstrap assembles the client core: configuration, storage,
// credential store, session machine, HTTP client, and the auth and cart
// domains, in dependency order.
package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"pricepulse-client-go/internal/config"
	"pricepulse-client-go/internal/core/api"
	"pricepulse-client-go/internal/domain/auth"
	"pricepulse-client-go/internal/domain/cart"
	"pricepulse-client-go/internal/domain/credential"
	"pricepulse-client-go/internal/domain/eventbus"
	"pricepulse-client-go/internal/domain/routeguard"
	"pricepulse-client-go/internal/domain/session"
	platformerrors "pricepulse-client-go/internal/platform/errors"
	platformlogging "pricepulse-client-go/internal/platform/logging"
	platformstorage "pricepulse-client-go/internal/platform/storage"
)

// Options tunes the assembly.
type Options struct {
	// ConfigPath overrides the config file location.
	ConfigPath string
	// DotEnv controls whether a .env file is consulted.
	DotEnv bool
}

// Core aggregates the assembled client components.
type Core struct {
	Config      *config.Config
	Logger      *platformlogging.Logger
	DB          *gorm.DB
	Credentials credential.Store
	Sessions    *session.Machine
	API         *api.Client
	Auth        *auth.Service
	Cart        *cart.Reconciler

	resetCart func(session.Snapshot)
}

type stepFn func(context.Context, *Core) error

type initStep struct {
	ID        string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

// initGraph lists the assembly steps in execution order. DependsOn is
// validated so a reordering that breaks the graph fails loudly.
func initGraph(opts Options) []initStep {
	return []initStep{
		{
			ID:   "config:load",
			Kind: platformerrors.KindConfig,
			Execute: func(ctx context.Context, core *Core) error {
				result, err := config.NewLoader().
					WithDotEnv(opts.DotEnv).
					WithPath(opts.ConfigPath).
					Load()
				if err != nil {
					return err
				}
				core.Config = result.Config
				return nil
			},
		},
		{
			ID:        "logging:init",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindConfig,
			Execute: func(ctx context.Context, core *Core) error {
				core.Logger = platformlogging.New(platformlogging.Config{
					Level: core.Config.Log.Level,
				})
				return nil
			},
		},
		{
			ID:        "storage:open",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      platformerrors.KindStorage,
			Execute: func(ctx context.Context, core *Core) error {
				db, err := platformstorage.Open(core.Config.Credential.SQLitePath)
				if err != nil {
					// The database is fatal only when it backs the
					// credential store; otherwise it just carries the
					// profile cache.
					driver := core.Config.Credential.Driver
					if driver == "" || driver == credential.DriverSQLite {
						return err
					}
					core.Logger.Warn("local database unavailable, profile cache disabled: %v", err)
					return nil
				}
				core.DB = db
				return nil
			},
		},
		{
			ID:        "credential:init",
			DependsOn: []string{"config:load", "storage:open"},
			Kind:      platformerrors.KindStorage,
			Execute: func(ctx context.Context, core *Core) error {
				cfg := credential.Config{
					Driver: core.Config.Credential.Driver,
					Slot:   core.Config.Credential.Slot,
				}
				if cfg.Driver == credential.DriverRedis {
					cfg.Redis = &credential.RedisConfig{
						Addr:     core.Config.Credential.Redis.Addr,
						Password: core.Config.Credential.Redis.Password,
						DB:       core.Config.Credential.Redis.DB,
						Prefix:   core.Config.Credential.Redis.Prefix,
					}
				}
				store, err := credential.New(cfg, credential.Dependencies{SQLiteDB: core.DB})
				if err != nil {
					return err
				}
				core.Credentials = store
				return nil
			},
		},
		{
			ID:        "session:init",
			DependsOn: []string{"credential:init", "logging:init"},
			Kind:      platformerrors.KindSession,
			Execute: func(ctx context.Context, core *Core) error {
				machine, err := session.NewMachine(session.Options{
					Credentials: core.Credentials,
					Logger:      core.Logger,
					Bus:         eventbus.Get(),
				})
				if err != nil {
					return err
				}
				core.Sessions = machine
				return nil
			},
		},
		{
			ID:        "api:init",
			DependsOn: []string{"credential:init", "session:init"},
			Kind:      platformerrors.KindTransport,
			Execute: func(ctx context.Context, core *Core) error {
				client, err := api.NewClient(api.Options{
					Config: api.Config{
						BaseURL:        core.Config.API.BaseURL,
						Timeout:        core.Config.API.Timeout(),
						RefreshTimeout: core.Config.API.RefreshTimeout(),
					},
					Credentials: core.Credentials,
					Logger:      core.Logger,
				})
				if err != nil {
					return err
				}
				client.SetSessionReporter(core.Sessions)
				core.API = client
				return nil
			},
		},
		{
			ID:        "auth:init",
			DependsOn: []string{"api:init", "session:init"},
			Kind:      platformerrors.KindDomain,
			Execute: func(ctx context.Context, core *Core) error {
				var cache auth.ProfileCache
				if core.DB != nil {
					cache = platformstorage.NewProfileCache(core.DB)
				}
				service, err := auth.NewService(auth.Options{
					API:         core.API,
					Credentials: core.Credentials,
					Sessions:    core.Sessions,
					Cache:       cache,
					Logger:      core.Logger,
				})
				if err != nil {
					return err
				}
				core.Auth = service
				return nil
			},
		},
		{
			ID:        "cart:init",
			DependsOn: []string{"api:init", "session:init"},
			Kind:      platformerrors.KindDomain,
			Execute: func(ctx context.Context, core *Core) error {
				reconciler, err := cart.NewReconciler(cart.Options{
					API:      core.API,
					Sessions: core.Sessions,
					Bus:      eventbus.Get(),
					Logger:   core.Logger,
				})
				if err != nil {
					return err
				}
				core.Cart = reconciler

				// The server cart belongs to the account; the local mirror
				// must not survive the session.
				core.resetCart = func(session.Snapshot) {
					reconciler.Reset()
				}
				return eventbus.Subscribe(eventbus.EventSessionLogout, core.resetCart)
			},
		},
	}
}

// Run assembles a Core. It does not touch the network; call Warmup to
// restore the session and pull the cart.
func Run(ctx context.Context, opts Options) (*Core, error) {
	core := &Core{}
	steps := initGraph(opts)

	done := make(map[string]bool, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if !done[dep] {
				return nil, platformerrors.New(platformerrors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not initialized", dep))
			}
		}
		if err := step.Execute(ctx, core); err != nil {
			return nil, platformerrors.Wrap(step.Kind, step.ID, "initialization failed", err)
		}
		done[step.ID] = true
	}
	return core, nil
}

// Warmup restores the session from the stored credential and, when that
// lands in an authenticated session, pulls the server cart. Cart failures
// degrade to an empty mirror rather than failing the start.
func (c *Core) Warmup(ctx context.Context) error {
	if err := c.Auth.Bootstrap(ctx); err != nil {
		return platformerrors.Wrap(platformerrors.KindSession, "warmup", "session restore failed", err)
	}
	if !c.Sessions.Snapshot().Authenticated() {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if _, err := c.Cart.Load(ctx); err != nil {
			c.Logger.Warn("cart warm-up failed: %v", err)
		}
		return nil
	})
	return group.Wait()
}

// GuardRoute evaluates a route requirement against the live session and
// cart state.
func (c *Core) GuardRoute(req routeguard.Requirement) routeguard.Decision {
	return routeguard.Decide(req, c.Sessions.Snapshot(), c.Cart.Snapshot())
}

// Close releases held resources. Safe to call once, after Run succeeded.
func (c *Core) Close(ctx context.Context) error {
	if c.resetCart != nil {
		if err := eventbus.Unsubscribe(eventbus.EventSessionLogout, c.resetCart); err != nil {
			c.Logger.Warn("event unsubscribe failed: %v", err)
		}
	}
	if c.Credentials != nil {
		if err := c.Credentials.Close(ctx); err != nil {
			return platformerrors.Wrap(platformerrors.KindStorage, "close", "credential store close failed", err)
		}
	}
	if c.DB != nil {
		if db, err := c.DB.DB(); err == nil {
			if err := db.Close(); err != nil {
				return platformerrors.Wrap(platformerrors.KindStorage, "close", "database close failed", err)
			}
		}
	}
	return nil
}
