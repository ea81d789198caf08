package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTripCarriesActorClaims(t *testing.T) {
	m := NewJWTManager("secret", "theme-gen")

	token, err := m.GenerateToken(ActorGrant{ActorID: "actor-1", Role: "admin", DailyLimit: 50, Premium: true}, "access", time.Minute)
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "actor-1", claims.ActorID)
	assert.Equal(t, "actor-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, 50, claims.DailyLimit)
	assert.True(t, claims.Premium)
}

func TestJWTManager_ExpiredAndForeignTokens(t *testing.T) {
	m := NewJWTManager("secret", "theme-gen")

	expired, err := m.GenerateToken(ActorGrant{ActorID: "a"}, "access", -time.Minute)
	require.NoError(t, err)
	_, err = m.ParseToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewJWTManager("other", "theme-gen")
	foreign, err := other.GenerateToken(ActorGrant{ActorID: "a"}, "access", time.Minute)
	require.NoError(t, err)
	_, err = m.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
