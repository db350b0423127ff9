package pipeline_test

import (
	"testing"

	"advocate_dashboard/internal/pipeline"

	"github.com/stretchr/testify/require"
)

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPaginate_SecondPage(t *testing.T) {
	page := pipeline.Paginate(numbers(12), 9, 2)
	require.Equal(t, []int{10, 11, 12}, page.Items)
	require.Equal(t, 2, page.TotalPages)
}

func TestPaginate_Properties(t *testing.T) {
	for _, total := range []int{0, 1, 8, 9, 10, 18, 25} {
		for _, size := range []int{1, 4, 9} {
			wantPages := (total + size - 1) / size
			for page := -1; page <= wantPages+2; page++ {
				got := pipeline.Paginate(numbers(total), size, page)
				require.Equal(t, wantPages, got.TotalPages)

				want := 0
				if page >= 1 {
					want = min(size, max(0, total-(page-1)*size))
				}
				require.Len(t, got.Items, want, "total=%d size=%d page=%d", total, size, page)
			}
		}
	}
}

func TestPaginate_Empty(t *testing.T) {
	got := pipeline.Paginate([]int{}, 9, 1)
	require.Equal(t, 0, got.TotalPages)
	require.Empty(t, got.Items)
	require.NotNil(t, got.Items)
}

func TestPaginate_InvalidPageSize(t *testing.T) {
	got := pipeline.Paginate(numbers(5), 0, 1)
	require.Equal(t, 0, got.TotalPages)
	require.Empty(t, got.Items)
}

func TestPaginate_DoesNotAlias(t *testing.T) {
	items := numbers(5)
	got := pipeline.Paginate(items, 2, 1)
	got.Items[0] = 100
	require.Equal(t, 1, items[0])
}
