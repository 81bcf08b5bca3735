package token

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret", "finance-api")

	access, err := m.IssueAccessToken(42)
	require.NoError(t, err)
	userID, err := m.VerifyAccessToken(access)
	require.NoError(t, err)
	require.Equal(t, uint(42), userID)

	refresh, err := m.IssueRefreshToken(42)
	require.NoError(t, err)
	userID, err = m.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, uint(42), userID)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	m := NewManager("test-secret", "finance-api")

	refresh, err := m.IssueRefreshToken(7)
	require.NoError(t, err)
	_, err = m.VerifyAccessToken(refresh)
	require.ErrorIs(t, err, ErrWrongType)

	access, err := m.IssueAccessToken(7)
	require.NoError(t, err)
	_, err = m.VerifyRefreshToken(access)
	require.ErrorIs(t, err, ErrWrongType)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewManager("secret-a", "finance-api")
	verifier := NewManager("secret-b", "finance-api")

	access, err := issuer.IssueAccessToken(7)
	require.NoError(t, err)
	_, err = verifier.VerifyAccessToken(access)
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuer := NewManager("test-secret", "someone-else")
	verifier := NewManager("test-secret", "finance-api")

	access, err := issuer.IssueAccessToken(7)
	require.NoError(t, err)
	_, err = verifier.VerifyAccessToken(access)
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", "finance-api")
	_, err := m.VerifyAccessToken("not.a.token")
	require.True(t, errors.Is(err, ErrInvalidToken))
}
