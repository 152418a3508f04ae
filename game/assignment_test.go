package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentNames(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("agent_%02d", i)
	}
	return ids
}

func assertBalanced(t *testing.T, a *Assignment, agentIDs []string, k int) {
	t.Helper()

	inDegree := make(map[string]int)
	for _, id := range agentIDs {
		list, ok := a.RequestLists[id]
		require.True(t, ok, "missing request list for %s", id)
		require.Len(t, list, k, "request list for %s", id)

		seen := make(map[string]bool)
		for _, target := range list {
			assert.NotEqual(t, id, target, "agent %s requests itself", id)
			assert.False(t, seen[target], "agent %s requests %s twice", id, target)
			seen[target] = true
			inDegree[target]++
		}
	}

	for _, id := range agentIDs {
		assert.Equal(t, k, inDegree[id], "in-degree for %s", id)
		require.Len(t, a.SigningPermissions[id], k, "signing permissions for %s", id)
	}
}

func TestGenerateAssignmentBalanced(t *testing.T) {
	cases := []struct {
		n, k int
	}{
		{4, 2},
		{4, 3},
		{5, 2},
		{7, 3},
		{10, 4},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			ids := agentNames(tc.n)
			a, err := GenerateAssignment(ids, tc.k)
			require.NoError(t, err)
			assertBalanced(t, a, ids, tc.k)
		})
	}
}

func TestGenerateAssignmentRejectsTooManyRequests(t *testing.T) {
	_, err := GenerateAssignment(agentNames(4), 4)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = GenerateAssignment(agentNames(3), 5)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSigningPermissionsAreTranspose(t *testing.T) {
	ids := agentNames(6)
	a, err := GenerateAssignment(ids, 2)
	require.NoError(t, err)

	for requester, targets := range a.RequestLists {
		for _, target := range targets {
			assert.Contains(t, a.SigningPermissions[target], requester,
				"%s requests from %s but is missing from its signing permissions", requester, target)
		}
	}
}

func TestCircularFallbackAlwaysBalanced(t *testing.T) {
	for n := 3; n <= 9; n++ {
		for k := 1; k < n; k++ {
			ids := agentNames(n)
			lists := circularRequestLists(ids, k)
			require.True(t, validateBalanced(lists, ids, k), "circular assignment unbalanced for n=%d k=%d", n, k)
		}
	}
}

func TestEdgeSetComparison(t *testing.T) {
	a := map[string][]string{"x": {"y", "z"}, "y": {"x"}}
	b := map[string][]string{"y": {"x"}, "x": {"z", "y"}}
	c := map[string][]string{"x": {"y"}, "y": {"x", "z"}}

	assert.True(t, sameEdgeSet(edgeSet(a), edgeSet(b)))
	assert.False(t, sameEdgeSet(edgeSet(a), edgeSet(c)))
}
