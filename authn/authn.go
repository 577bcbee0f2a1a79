// Package authn manages the credential records spec.md §3 and §4.1 describe:
// access-key/secret-key pairs, an enabled flag, and a flat policy list, all
// backed by the metadata repository rather than a standalone auth service.
package authn

import (
	"context"

	"github.com/hafiz-io/hafiz/cmn"
	"github.com/hafiz-io/hafiz/metadata"
)

// BypassGovernanceRetentionPolicy grants the privilege spec.md §4.6 requires
// of a principal presenting x-amz-bypass-governance-retention: true.
const BypassGovernanceRetentionPolicy = "BypassGovernanceRetention"

// Manager implements spec.md §4.1's credential CRUD against the metadata
// repository.
type Manager struct {
	Meta metadata.Repository
}

// Create mints a fresh access/secret key pair and stores it, per spec.md
// §3's "Credential" record shape.
func (m *Manager) Create(ctx context.Context, name string, policies []string) (metadata.Credential, error) {
	c := metadata.Credential{
		AccessKey: cmn.GenAccessKey(),
		SecretKey: cmn.GenSecretKey(),
		Name:      name,
		Enabled:   true,
		Policies:  policies,
	}
	if err := m.Meta.CreateCredential(ctx, c); err != nil {
		return metadata.Credential{}, cmn.AsError(err, cmn.GenRequestID())
	}
	return c, nil
}

// Get looks up a credential by access key.
func (m *Manager) Get(ctx context.Context, accessKey string) (metadata.Credential, error) {
	c, ok, err := m.Meta.GetCredential(ctx, accessKey)
	if err != nil {
		return metadata.Credential{}, cmn.AsError(err, cmn.GenRequestID())
	}
	if !ok {
		return metadata.Credential{}, cmn.New("NoSuchCredential", 404, cmn.KindNotFound,
			"no credential with access key %q", accessKey)
	}
	return c, nil
}

// List returns every registered credential.
func (m *Manager) List(ctx context.Context) ([]metadata.Credential, error) {
	cs, err := m.Meta.ListCredentials(ctx)
	if err != nil {
		return nil, cmn.AsError(err, cmn.GenRequestID())
	}
	return cs, nil
}

// SetEnabled flips a credential's enabled flag; a disabled credential fails
// sigv4 verification via Lookup below even though its record still exists.
func (m *Manager) SetEnabled(ctx context.Context, accessKey string, enabled bool) error {
	c, err := m.Get(ctx, accessKey)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if err := m.Meta.UpdateCredential(ctx, c); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// SetPolicies replaces a credential's policy list.
func (m *Manager) SetPolicies(ctx context.Context, accessKey string, policies []string) error {
	c, err := m.Get(ctx, accessKey)
	if err != nil {
		return err
	}
	c.Policies = policies
	if err := m.Meta.UpdateCredential(ctx, c); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// Delete removes a credential outright.
func (m *Manager) Delete(ctx context.Context, accessKey string) error {
	if err := m.Meta.DeleteCredential(ctx, accessKey); err != nil {
		return cmn.AsError(err, cmn.GenRequestID())
	}
	return nil
}

// Lookup adapts Manager to sigv4.SecretLookup: a disabled credential looks
// up as if it didn't exist, so a suspended key fails signature verification
// with InvalidAccessKeyId rather than leaking its enabled state.
func (m *Manager) Lookup(accessKey string) (secretKey string, ok bool) {
	c, found, err := m.Meta.GetCredential(context.Background(), accessKey)
	if err != nil || !found || !c.Enabled {
		return "", false
	}
	return c.SecretKey, true
}

// HasPolicy reports whether accessKey's credential carries the named
// policy, e.g. BypassGovernanceRetentionPolicy for spec.md §4.6's
// Governance-retention bypass header.
func (m *Manager) HasPolicy(ctx context.Context, accessKey, policy string) bool {
	c, ok, err := m.Meta.GetCredential(ctx, accessKey)
	if err != nil || !ok || !c.Enabled {
		return false
	}
	for _, p := range c.Policies {
		if p == policy {
			return true
		}
	}
	return false
}
