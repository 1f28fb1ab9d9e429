package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePermissions(t *testing.T) {
	got := normalizePermissions([]string{" Catalog.View ", "catalog.view", "", "SALES.create"})
	require.Len(t, got, 2)
	require.ElementsMatch(t, []string{"catalog.view", "sales.create"}, got)
}

func TestSplitPermission(t *testing.T) {
	resource, action := SplitPermission("purchasing.receive")
	require.Equal(t, "purchasing", resource)
	require.Equal(t, "receive", action)

	resource, action = SplitPermission("reports.finance.view")
	require.Equal(t, "reports.finance", resource)
	require.Equal(t, "view", action)

	resource, action = SplitPermission("bare")
	require.Equal(t, "bare", resource)
	require.Equal(t, "", action)
}
