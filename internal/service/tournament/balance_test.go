package tournament

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceFor(t *testing.T) {
	cases := []struct {
		name      string
		remaining int
		perTable  int
		sizes     map[int64]int
		want      BalanceKind
		from, to  int64
	}{
		{"single table", 5, 6, map[int64]int{1: 5}, "", 0, 0},
		{"fits one table", 6, 6, map[int64]int{1: 3, 2: 3}, BalanceMerge, 0, 0},
		{"even enough", 11, 6, map[int64]int{1: 6, 2: 5}, "", 0, 0},
		{"drifted", 10, 6, map[int64]int{1: 6, 2: 4}, BalanceRebalance, 1, 2},
		{"three tables", 14, 6, map[int64]int{1: 5, 2: 6, 3: 3}, BalanceRebalance, 2, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := balanceFor(tc.remaining, tc.perTable, tc.sizes)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Kind)
			assert.Equal(t, tc.from, got.FromTableID)
			assert.Equal(t, tc.to, got.ToTableID)
		})
	}
}
