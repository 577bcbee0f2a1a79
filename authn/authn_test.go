package authn

import (
	"context"
	"testing"

	"github.com/hafiz-io/hafiz/metadata"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	meta, err := metadata.OpenBunt(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	return &Manager{Meta: meta}
}

func TestCreateGetRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c, err := m.Create(ctx, "ci-bot", []string{BypassGovernanceRetentionPolicy})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.AccessKey) != 20 || c.AccessKey[:4] != "AKIA" {
		t.Fatalf("unexpected access key shape: %q", c.AccessKey)
	}
	if len(c.SecretKey) != 40 {
		t.Fatalf("expected a 40-char secret key, got %d chars", len(c.SecretKey))
	}

	got, err := m.Get(ctx, c.AccessKey)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "ci-bot" || !got.Enabled {
		t.Fatalf("unexpected stored credential: %+v", got)
	}
}

func TestLookupRejectsDisabledCredential(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c, err := m.Create(ctx, "suspended-bot", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := m.Lookup(c.AccessKey); !ok {
		t.Fatal("expected lookup to succeed while enabled")
	}

	if err := m.SetEnabled(ctx, c.AccessKey, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Lookup(c.AccessKey); ok {
		t.Fatal("expected lookup to fail once the credential is disabled")
	}
}

func TestHasPolicy(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c, err := m.Create(ctx, "ops-bot", []string{BypassGovernanceRetentionPolicy})
	if err != nil {
		t.Fatal(err)
	}
	if !m.HasPolicy(ctx, c.AccessKey, BypassGovernanceRetentionPolicy) {
		t.Fatal("expected credential to carry the bypass policy")
	}
	if m.HasPolicy(ctx, c.AccessKey, "SomeOtherPolicy") {
		t.Fatal("expected credential to not carry an unrelated policy")
	}
}

func TestDeleteRemovesCredential(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c, err := m.Create(ctx, "throwaway", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, c.AccessKey); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, c.AccessKey); err == nil {
		t.Fatal("expected lookup of a deleted credential to fail")
	}
}
