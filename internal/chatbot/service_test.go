package chatbot

import (
	"context"
	"testing"

	"github.com/smallbiznis/storeadmin/internal/counter"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/resolver"
	"github.com/smallbiznis/storeadmin/pkg/docstore/memory"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) *Service {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	res := resolver.New(nil)
	return NewService(Params{
		Registry: records.New(records.Params{Client: store, Resolver: res, Log: zap.NewNop()}),
		Counter:  counter.New(counter.Params{Client: store, Resolver: res, Log: zap.NewNop()}),
		Log:      zap.NewNop(),
	})
}

func config(prompt string) records.ChatbotConfig {
	return records.ChatbotConfig{Enabled: true, Name: "Helper", SystemPrompt: prompt, Temperature: 0.4}
}

func TestSaveNumbersVersions(t *testing.T) {
	svc := newService(t)
	ctx := tenantctx.WithActor(context.Background(), "owner@example.com")

	_, err := svc.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrNotConfigured)

	first, err := svc.Save(ctx, "A", config("one"), "initial")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, "owner@example.com", first.UpdatedBy)

	second, err := svc.Save(ctx, "A", config("two"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	current, err := svc.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "two", current.SystemPrompt)
	assert.Equal(t, int64(2), current.Version)

	versions, err := svc.ListVersions(ctx, "A", 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, VersionID(2), versions[0].ID)
	assert.Equal(t, "initial", versions[1].Note)
	assert.Equal(t, "one", versions[1].Config.SystemPrompt)
}

func TestSaveRejectsInvalidWithoutVersion(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "A", records.ChatbotConfig{Name: "Helper"}, "")
	var verr *records.ValidationError
	require.ErrorAs(t, err, &verr)

	saved, err := svc.Save(ctx, "A", config("ok"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = svc.Save(ctx, "", config("ok"), "")
	assert.ErrorIs(t, err, ErrInvalidStore)
}

func TestRestore(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "A", config("one"), "")
	require.NoError(t, err)
	_, err = svc.Save(ctx, "A", config("two"), "")
	require.NoError(t, err)

	restored, err := svc.Restore(ctx, "A", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.Version)
	assert.Equal(t, "one", restored.SystemPrompt)

	versions, err := svc.ListVersions(ctx, "A", 1)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "restored from version 1", versions[0].Note)

	_, err = svc.Restore(ctx, "A", 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestVersionsAreTenantScoped(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "A", config("a"), "")
	require.NoError(t, err)
	b, err := svc.Save(ctx, "B", config("b"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)

	_, err = svc.Restore(ctx, "B", 2)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}
