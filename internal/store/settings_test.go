package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSettingMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSetting(context.Background(), "webhook_secret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetSettingThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSetting(ctx, "webhook_secret", "first"))
	v, err := s.GetSetting(ctx, "webhook_secret")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	require.NoError(t, s.SetSetting(ctx, "webhook_secret", "second"))
	v, err = s.GetSetting(ctx, "webhook_secret")
	require.NoError(t, err)
	assert.Equal(t, "second", v, "SetSetting must upsert, not insert a second row")
}

func TestDeleteSettingRemovesOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSetting(ctx, "base_domain", "apps.example.com"))
	require.NoError(t, s.DeleteSetting(ctx, "base_domain"))

	_, err := s.GetSetting(ctx, "base_domain")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSettingsReturnsEveryKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSetting(ctx, "webhook_secret", "s3cr3t"))
	require.NoError(t, s.SetSetting(ctx, "base_domain", "apps.example.com"))

	all, err := s.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"webhook_secret": "s3cr3t", "base_domain": "apps.example.com"}, all)
}
