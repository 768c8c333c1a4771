package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikworkspace/anyshare/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("test-secret-test-secret-test-secret")

	exp := time.Now().Add(5 * time.Minute)
	raw, err := svc.Issue("peer-1a2b3c4d", "sess-1", domain.RoleSender, exp)
	require.NoError(t, err)

	claims, err := svc.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("peer-1a2b3c4d"), claims.PeerID())
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, string(domain.RoleSender), claims.Role)
	assert.Equal(t, KindSignaling, claims.Kind)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestVerifyTampered(t *testing.T) {
	svc := NewService("test-secret-test-secret-test-secret")
	raw, err := svc.Issue("peer-1", "sess-1", domain.RoleReceiver, time.Now().Add(time.Minute))
	require.NoError(t, err)

	mangled := raw[:len(raw)-2] + "xx"
	_, err = svc.Verify(mangled)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewService("secret-a-secret-a-secret-a-secret-a")
	verifier := NewService("secret-b-secret-b-secret-b-secret-b")

	raw, err := issuer.Issue("peer-1", "sess-1", domain.RoleSender, time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	svc := NewService("test-secret-test-secret-test-secret")
	raw, err := svc.Issue("peer-1", "sess-1", domain.RoleSender, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	svc := NewService("test-secret-test-secret-test-secret")
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(raw)
		assert.ErrorIs(t, err, domain.ErrInvalidToken, "input %q", raw)
	}
}
