// Package identity owns the local participant identity: a guest id minted
// and persisted before any network call, later reconciled with a
// backend-provisioned session. Dependent systems are never blocked on the
// backend; they run on a temporary session marker until provisioning lands.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/telemetry"
	"parley/pkg/transport"
)

// ErrProvisioningFailed marks backend session provisioning errors. The
// returned identity is still usable; callers may retry by resolving again.
var ErrProvisioningFailed = errors.New("session provisioning failed")

// Store persists the local identity across sessions.
type Store interface {
	Load() (*models.LocalIdentity, error)
	Save(models.LocalIdentity) error
	Clear() error
}

// ResolveOptions control identity resolution.
type ResolveOptions struct {
	PreferredName   string
	PreferredAvatar string
	// ReuseExisting returns the persisted identity unchanged when one
	// exists; false always mints a fresh guest id.
	ReuseExisting bool
}

// ReconcileHandler is notified when the backend session replaces the
// temporary marker. oldSessionID is the marker previously handed out.
type ReconcileHandler func(oldSessionID string, id models.LocalIdentity)

// Bootstrap resolves and provisions the device identity. Concurrent
// resolutions share one in-flight provisioning request; the request is
// never cancelled once started.
type Bootstrap struct {
	store       Store
	provisioner transport.SessionProvisioner
	wait        time.Duration

	mu      sync.Mutex
	current *models.LocalIdentity
	subs    []ReconcileHandler

	sf singleflight.Group
}

// NewBootstrap builds a Bootstrap. wait bounds how long ResolveIdentity
// blocks on provisioning before handing back the temporary identity.
func NewBootstrap(store Store, provisioner transport.SessionProvisioner, wait time.Duration) *Bootstrap {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Bootstrap{store: store, provisioner: provisioner, wait: wait}
}

// OnReconciled registers a handler invoked after the backend session id is
// adopted.
func (b *Bootstrap) OnReconciled(fn ReconcileHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// ResolveIdentity returns a usable identity. The guest record is created
// and persisted synchronously; provisioning happens in background and this
// call waits at most the configured window for it. On provisioning failure
// the temporary identity is returned alongside ErrProvisioningFailed.
func (b *Bootstrap) ResolveIdentity(ctx context.Context, opts ResolveOptions) (models.LocalIdentity, error) {
	id, err := b.ensureLocal(opts)
	if err != nil {
		return models.LocalIdentity{}, err
	}
	if id.Provisioned() {
		return id, nil
	}

	ch := b.provisionAsync(opts)
	select {
	case res := <-ch:
		if res.Err != nil {
			// temporary identity stays valid; surface the error for retry
			return b.snapshot(), fmt.Errorf("%w: %v", ErrProvisioningFailed, res.Err)
		}
		return b.snapshot(), nil
	case <-time.After(b.wait):
		logger.Info("provisioning_pending", "guest", id.GuestID, "waited", b.wait.String())
		return id, nil
	case <-ctx.Done():
		// caller moved on; the provisioning request keeps running
		return id, nil
	}
}

// ensureLocal returns the current identity, loading or minting as needed.
// A freshly minted guest id is persisted before this function returns.
func (b *Bootstrap) ensureLocal(opts ResolveOptions) (models.LocalIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if opts.ReuseExisting {
		if b.current != nil {
			return *b.current, nil
		}
		stored, err := b.store.Load()
		if err != nil {
			logger.Warn("identity_load_failed", "error", err)
		} else if stored != nil {
			b.current = stored
			logger.Info("identity_restored", "guest", stored.GuestID, "provisioned", stored.Provisioned())
			return *stored, nil
		}
	}

	id := models.LocalIdentity{
		GuestID:     uuid.NewString(),
		DisplayName: opts.PreferredName,
		AvatarRef:   opts.PreferredAvatar,
	}
	if err := b.store.Save(id); err != nil {
		return models.LocalIdentity{}, fmt.Errorf("persist guest identity: %w", err)
	}
	b.current = &id
	logger.Info("identity_created", "guest", id.GuestID)
	return id, nil
}

// provisionAsync starts (or joins) the single in-flight provisioning
// request. The request runs on a background context so an impatient caller
// cannot cancel it.
func (b *Bootstrap) provisionAsync(opts ResolveOptions) <-chan singleflight.Result {
	return b.sf.DoChan("provision", func() (any, error) {
		sid, err := b.provisioner.ProvisionSession(context.Background(), opts.PreferredName, opts.PreferredAvatar)
		if err != nil {
			telemetry.ProvisioningResult("error")
			logger.Warn("provisioning_failed", "error", err)
			return nil, err
		}
		telemetry.ProvisioningResult("ok")
		b.adopt(sid)
		return sid, nil
	})
}

// adopt installs the backend session id, preserving guest id and
// presentation attributes, and notifies subscribers with the marker the
// session replaces.
func (b *Bootstrap) adopt(sessionID string) {
	b.mu.Lock()
	if b.current == nil {
		// logged out while the request was in flight
		b.mu.Unlock()
		logger.Warn("provisioning_after_logout", "session", sessionID)
		return
	}
	if b.current.Provisioned() {
		// an earlier request already reconciled; keep the existing session
		b.mu.Unlock()
		return
	}
	old := b.current.SessionID()
	b.current.BackendSessionID = sessionID
	id := *b.current
	subs := append([]ReconcileHandler(nil), b.subs...)
	if err := b.store.Save(id); err != nil {
		logger.Warn("identity_save_failed", "guest", id.GuestID, "error", err)
	}
	b.mu.Unlock()

	logger.Info("identity_reconciled", "guest", id.GuestID, "session", sessionID)
	for _, fn := range subs {
		fn(old, id)
	}
}

func (b *Bootstrap) snapshot() models.LocalIdentity {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return models.LocalIdentity{}
	}
	return *b.current
}

// Current returns the active identity, if any.
func (b *Bootstrap) Current() (models.LocalIdentity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return models.LocalIdentity{}, false
	}
	return *b.current, true
}

// IsLocalSender reports whether senderID belongs to this device: either the
// temporary marker or the provisioned session id.
func (b *Bootstrap) IsLocalSender(senderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || senderID == "" {
		return false
	}
	if senderID == b.current.BackendSessionID && b.current.BackendSessionID != "" {
		return true
	}
	return senderID == models.TempSessionPrefix+b.current.GuestID
}

// Logout clears the persisted identity. This is the only path that discards
// a guest id.
func (b *Bootstrap) Logout() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Clear(); err != nil {
		return err
	}
	b.current = nil
	logger.Info("identity_logged_out")
	return nil
}
