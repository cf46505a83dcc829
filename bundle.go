package rbac

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/maestro-platform/rbac/logger"
)

// SignedRoleBundle is a signed snapshot of custom role definitions, used
// to ship the role set to replica engines.
type SignedRoleBundle struct {
	Roles []*Role        `json:"roles"`
	Sig   []byte         `json:"sig"`
	Meta  map[string]any `json:"meta,omitempty"`
}

func canonicalBundleBytes(roles []*Role) ([]byte, error) {
	return json.Marshal(roles)
}

// SignBundle signs the role set with the given ed25519 private key.
func SignBundle(priv ed25519.PrivateKey, roles []*Role) (*SignedRoleBundle, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("rbac: invalid signing key size %d", len(priv))
	}
	payload, err := canonicalBundleBytes(roles)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return &SignedRoleBundle{Roles: roles, Sig: ed25519.Sign(priv, payload)}, nil
}

// VerifyBundle checks the bundle signature against the public key.
func VerifyBundle(pub ed25519.PublicKey, b *SignedRoleBundle) (bool, error) {
	if b == nil {
		return false, fmt.Errorf("rbac: bundle is nil")
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("rbac: invalid public key size %d", len(pub))
	}
	payload, err := canonicalBundleBytes(b.Roles)
	if err != nil {
		return false, fmt.Errorf("marshal bundle: %w", err)
	}
	return ed25519.Verify(pub, payload, b.Sig), nil
}

// ApplyBundle verifies the bundle signature and upserts every role it
// carries. Bundles never carry system roles; a colliding ID aborts the
// apply before anything is written.
func (e *Engine) ApplyBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedRoleBundle) error {
	ok, err := VerifyBundle(pub, bundle)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rbac: bundle signature verification failed")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, role := range bundle.Roles {
		if err := validateID("role id", role.ID); err != nil {
			return err
		}
		if existing, ok := e.roles[role.ID]; ok && existing.IsSystem {
			return fmt.Errorf("%w: %s", ErrSystemRole, role.ID)
		}
	}
	for _, role := range bundle.Roles {
		cp := *role
		cp.IsSystem = false
		cp.Permissions = append([]Permission(nil), role.Permissions...)
		if e.roleStore != nil {
			if err := e.roleStore.SaveRole(ctx, &cp); err != nil {
				return fmt.Errorf("save role %s: %w", cp.ID, err)
			}
		}
		e.roles[cp.ID] = &cp
	}
	e.invalidateAllLocked()
	e.logger.Info("role bundle applied", "roles", len(bundle.Roles))
	return nil
}

// RoleSource supplies the role set a distributor ships. *Engine satisfies
// it through ListCustomRoles.
type RoleSource interface {
	ListCustomRoles() []*Role
}

// BundleSubscriber receives freshly signed role bundles.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedRoleBundle) error
}

// BundleSubscriberFunc adapts a function to the BundleSubscriber
// interface.
type BundleSubscriberFunc func(ctx context.Context, pub ed25519.PublicKey, bundle *SignedRoleBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedRoleBundle) error {
	return f(ctx, pub, bundle)
}

// BundleDistributor signs the current custom role set and pushes it to
// registered subscribers whenever a change is signaled. Signing keys
// rotate on a timer.
type BundleDistributor struct {
	source           RoleSource
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan struct{}
	stopCh           chan struct{}
	subscribers      []BundleSubscriber
	log              logger.Logger
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type BundleDistributorOption func(*BundleDistributor)

// WithBundleSigningKey installs a fixed signing key instead of a generated
// one.
func WithBundleSigningKey(priv ed25519.PrivateKey) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = d.priv.Public().(ed25519.PublicKey)
		}
	}
}

// WithBundleRotationInterval overrides the 24h signing key rotation.
func WithBundleRotationInterval(interval time.Duration) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

// WithBundleLogger sets the distributor's logger.
func WithBundleLogger(l logger.Logger) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if l != nil {
			d.log = l
		}
	}
}

func NewBundleDistributor(source RoleSource, opts ...BundleDistributorOption) (*BundleDistributor, error) {
	if source == nil {
		return nil, fmt.Errorf("rbac: role source is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &BundleDistributor{
		source:           source,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
		log:              logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

// Start launches the distribution loop. Calling Start twice is a no-op.
func (d *BundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-d.notifyCh:
				if err := d.distribute(ctx); err != nil {
					d.log.Error("bundle distribution failed", "error", err)
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.log.Error("bundle key rotation failed", "error", err)
				}
			}
		}
	}()
}

// Stop shuts the loop down, waiting for in-flight deliveries up to the
// context deadline.
func (d *BundleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyChange signals that the role set changed. Signals coalesce: a
// pending notification absorbs later ones.
func (d *BundleDistributor) NotifyChange() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

// RegisterSubscriber adds a bundle recipient.
func (d *BundleDistributor) RegisterSubscriber(sub BundleSubscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

// RotateSigningKey replaces the signing keypair.
func (d *BundleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	d.log.Info("bundle signing key rotated")
	return nil
}

// CurrentPublicKey returns a copy of the active verification key.
func (d *BundleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *BundleDistributor) distribute(ctx context.Context) error {
	roles := d.source.ListCustomRoles()

	// The keypair is snapshotted together: a rotation landing mid-cycle
	// must not split the signing key from the advertised key.
	d.mu.RLock()
	priv := d.priv
	pub := append(ed25519.PublicKey(nil), d.pub...)
	subs := append([]BundleSubscriber(nil), d.subscribers...)
	d.mu.RUnlock()

	bundle, err := SignBundle(priv, roles)
	if err != nil {
		return err
	}
	bundle.Meta = map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339Nano),
		"signing_key":  base64.StdEncoding.EncodeToString(pub),
		"role_count":   len(roles),
	}

	for _, sub := range subs {
		if err := sub.OnBundle(ctx, pub, bundle); err != nil {
			d.log.Error("bundle subscriber error", "error", err)
		}
	}
	return nil
}
