package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/HBKDK/ci-llm-agent/internal/token"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, secret string, now *time.Time) *token.Issuer {
	t.Helper()
	issuer, err := token.NewIssuer(secret, 7*24*time.Hour, token.WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return issuer
}

func requireReason(t *testing.T, err error, want token.Reason) {
	t.Helper()
	require.Error(t, err)
	reason, ok := token.ReasonOf(err)
	require.True(t, ok, "not a verification error: %v", err)
	require.Equal(t, want, reason)
}

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, "secret", &now)

	raw, err := issuer.Issue(token.Claims{
		PendingApprovalID: "pa-1",
		AnalysisID:        "an-1",
		AdminIdentity:     "admin",
		Kind:              token.KindApproval,
	})
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(raw, "."))

	claims, err := issuer.Verify(raw, token.KindApproval)
	require.NoError(t, err)
	require.Equal(t, "pa-1", claims.PendingApprovalID)
	require.Equal(t, "an-1", claims.AnalysisID)
	require.Equal(t, "admin", claims.AdminIdentity)
	require.Equal(t, now.Add(7*24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestIssuer_Malformed(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, "secret", &now)

	for _, raw := range []string{"", "   ", "abc", "a.b", "a.b.c.d", "a.b.c"} {
		_, err := issuer.Verify(raw, token.KindApproval)
		requireReason(t, err, token.ReasonMalformed)
	}
}

func TestIssuer_BadSignature(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, "secret", &now)
	other := newIssuer(t, "other-secret", &now)

	raw, err := other.Issue(token.Claims{PendingApprovalID: "pa-1", AdminIdentity: "admin", Kind: token.KindApproval})
	require.NoError(t, err)

	_, err = issuer.Verify(raw, token.KindApproval)
	requireReason(t, err, token.ReasonBadSignature)
}

func TestIssuer_TamperedPayload(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, "secret", &now)

	a, err := issuer.Issue(token.Claims{PendingApprovalID: "pa-1", AdminIdentity: "admin", Kind: token.KindApproval})
	require.NoError(t, err)
	b, err := issuer.Issue(token.Claims{PendingApprovalID: "pa-2", AdminIdentity: "admin", Kind: token.KindApproval})
	require.NoError(t, err)

	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	forged := pa[0] + "." + pb[1] + "." + pa[2]

	_, err = issuer.Verify(forged, token.KindApproval)
	requireReason(t, err, token.ReasonBadSignature)
}

func TestIssuer_WrongType(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, "secret", &now)

	raw, err := issuer.Issue(token.Claims{PendingApprovalID: "pa-1", AdminIdentity: "admin", Kind: token.KindModification})
	require.NoError(t, err)

	_, err = issuer.Verify(raw, token.KindApproval)
	requireReason(t, err, token.ReasonWrongType)

	_, err = issuer.Verify(raw, token.KindModification)
	require.NoError(t, err)
}

func TestIssuer_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, "secret", &now)

	raw, err := issuer.Issue(token.Claims{PendingApprovalID: "pa-1", AdminIdentity: "admin", Kind: token.KindApproval})
	require.NoError(t, err)

	now = now.Add(7*24*time.Hour + time.Second)
	claims, err := issuer.Verify(raw, token.KindApproval)
	requireReason(t, err, token.ReasonExpired)
	require.NotNil(t, claims)
	require.Equal(t, "pa-1", claims.PendingApprovalID)
}

func TestIssuer_RejectsBadIssueInput(t *testing.T) {
	now := time.Now()
	issuer := newIssuer(t, "secret", &now)

	_, err := issuer.Issue(token.Claims{Kind: token.KindApproval})
	require.Error(t, err)
	_, err = issuer.Issue(token.Claims{PendingApprovalID: "pa-1", Kind: "other"})
	require.Error(t, err)

	_, err = token.NewIssuer("", time.Hour)
	require.Error(t, err)
}

func TestReason_String(t *testing.T) {
	require.Equal(t, "the link has expired", token.ReasonExpired.String())
	require.NotEqual(t, token.ReasonMalformed.String(), token.ReasonBadSignature.String())
}
