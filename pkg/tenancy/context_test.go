package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTenantAndTenantFromContext(t *testing.T) {
	ctx := WithTenant(context.Background(), TenantContext{Namespace: "sales-jp", User: "tanaka"})

	got, ok := TenantFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sales-jp", got.Namespace)
	assert.Equal(t, "tanaka", got.User)
}

func TestNamespaceFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"with tenant set", WithTenant(context.Background(), TenantContext{Namespace: "sales-jp"}), "sales-jp"},
		{"without tenant set", context.Background(), DefaultNamespace},
		{"empty namespace", WithTenant(context.Background(), TenantContext{}), DefaultNamespace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NamespaceFromContext(tt.ctx))
		})
	}
}

func TestUserFromContext(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))
	assert.Nil(t, UserFromContext(WithTenant(context.Background(), TenantContext{Namespace: "a"})))

	user := UserFromContext(WithTenant(context.Background(), TenantContext{Namespace: "a", User: "sato"}))
	require.NotNil(t, user)
	assert.Equal(t, "sato", *user)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, mode)

	mode, err = ParseMode("namespace")
	require.NoError(t, err)
	assert.Equal(t, ModeNamespace, mode)

	_, err = ParseMode("cluster")
	assert.Error(t, err)
}
