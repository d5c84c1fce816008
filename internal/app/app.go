// Package app wires the sync core together for the CLI: config, logging,
// the local store, transport, identity bootstrap and the conversation
// service, plus the optional diagnostics listener and cache retention.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"parley/internal/retention"
	"parley/pkg/config"
	"parley/pkg/conversation"
	"parley/pkg/identity"
	"parley/pkg/logger"
	"parley/pkg/store"
	"parley/pkg/transport"
	"parley/pkg/validation"
)

// App encapsulates the client components and lifecycle.
type App struct {
	Cfg       *config.Config
	Source    string
	Version   string
	Bootstrap *identity.Bootstrap
	Service   *conversation.Service
	Client    *transport.Client

	retCancel context.CancelFunc
	diagStop  func(context.Context) error
}

// Options tune wiring that only the caller knows, like the scroll state.
type Options struct {
	// Pinned reports whether the presentation is following the latest
	// message. Nil defaults to always-pinned (headless usage).
	Pinned func() bool
}

// New initializes everything that does not need a running context: logger,
// store, transport and engines. Call Start to subscribe and serve.
func New(cfg *config.Config, source, version string, opts Options) (*App, error) {
	logger.InitWithLevel(cfg.Logging.Level)

	if err := store.Open(filepath.Join(cfg.Storage.DataDir, "store")); err != nil {
		return nil, fmt.Errorf("open local store at %s: %w", cfg.Storage.DataDir, err)
	}

	client := transport.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.RequestTimeout.Duration())
	boot := identity.NewBootstrap(store.IdentityStore{}, client, cfg.Client.ProvisionWait.Duration())

	validators := validation.Chain{validation.NewLocal(validation.Rules{
		MaxBodyLen:   cfg.Validation.MaxBodyLen,
		BlockedTerms: cfg.Validation.BlockedTerms,
	})}
	if cfg.Validation.RemoteURL != "" {
		remote := transport.NewClient(cfg.Validation.RemoteURL, cfg.Backend.APIKey, cfg.Backend.RequestTimeout.Duration())
		validators = append(validators, remote)
	}

	stream := &transport.WSStream{URL: cfg.Backend.StreamURL, APIKey: cfg.Backend.APIKey}
	svc := conversation.NewService(conversation.Options{
		ConversationID: cfg.Client.Conversation,
		GroupGapMs:     cfg.Client.GroupGap.Duration().Milliseconds(),
		TypingIdle:     cfg.Client.TypingIdle.Duration(),
		Pinned:         opts.Pinned,
	}, boot, validators, client, stream, client, store.SnapshotCache{})

	return &App{
		Cfg:       cfg,
		Source:    source,
		Version:   version,
		Bootstrap: boot,
		Service:   svc,
		Client:    client,
	}, nil
}

// Start resolves the identity, opens the conversation and starts the
// diagnostics listener and retention runner. The identity is usable on
// return even when backend provisioning is still in flight.
func (a *App) Start(ctx context.Context) error {
	id, err := a.Bootstrap.ResolveIdentity(ctx, identity.ResolveOptions{
		PreferredName:   a.Cfg.Client.DisplayName,
		PreferredAvatar: a.Cfg.Client.AvatarRef,
		ReuseExisting:   true,
	})
	if err != nil {
		// provisioning failure is non-fatal; the temporary identity works
		logger.Warn("identity_provisioning_degraded", "guest", id.GuestID, "error", err)
	}

	if err := a.Service.Open(ctx); err != nil {
		return fmt.Errorf("subscribe to stream: %w", err)
	}

	if a.Cfg.Diagnostics.Enabled {
		stop, err := a.startDiagnostics()
		if err != nil {
			return err
		}
		a.diagStop = stop
	}

	cancel, err := retention.Start(ctx, a.Cfg.Retention)
	if err != nil {
		return fmt.Errorf("start retention: %w", err)
	}
	a.retCancel = cancel
	return nil
}

// Close tears everything down in reverse order.
func (a *App) Close(ctx context.Context) {
	if a.retCancel != nil {
		a.retCancel()
	}
	if a.diagStop != nil {
		_ = a.diagStop(ctx)
	}
	a.Service.Close()
	if err := store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
}
