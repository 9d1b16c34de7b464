package provider

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []ListEntry {
	out := make([]ListEntry, n)
	for i := range out {
		out[i] = ListEntry{Key: fmt.Sprintf("/dir/file-%02d", i)}
	}
	return out
}

func TestValidateListOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       ListOptions
		wantOffset int
		wantField  string
	}{
		{name: "defaults", opts: ListOptions{}},
		{name: "positive limit", opts: ListOptions{Limit: Limit(10)}},
		{name: "zero limit", opts: ListOptions{Limit: Limit(0)}, wantField: "limit"},
		{name: "negative limit", opts: ListOptions{Limit: Limit(-1)}, wantField: "limit"},
		{name: "cursor", opts: ListOptions{Cursor: "25"}, wantOffset: 25},
		{name: "zero cursor", opts: ListOptions{Cursor: "0"}},
		{name: "garbage cursor", opts: ListOptions{Cursor: "not-a-valid-token"}, wantField: "cursor"},
		{name: "negative cursor", opts: ListOptions{Cursor: "-5"}, wantField: "cursor"},
		{name: "fractional cursor", opts: ListOptions{Cursor: "1.5"}, wantField: "cursor"},
		{name: "overflow cursor", opts: ListOptions{Cursor: "99999999999999999999999"}, wantField: "cursor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, err := ValidateListOptions(tt.opts)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOffset, offset)
				return
			}
			var ive *InputValidationError
			require.ErrorAs(t, err, &ive)
			assert.Equal(t, tt.wantField, ive.Field)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestPaginate(t *testing.T) {
	all := entries(5)

	t.Run("no limit returns everything", func(t *testing.T) {
		page, cursor := Paginate(all, 0, nil)
		assert.Equal(t, all, page)
		assert.Empty(t, cursor)
	})

	t.Run("limit smaller than set", func(t *testing.T) {
		page, cursor := Paginate(all, 0, Limit(2))
		assert.Equal(t, all[:2], page)
		assert.Equal(t, "2", cursor)
	})

	t.Run("last partial page", func(t *testing.T) {
		page, cursor := Paginate(all, 4, Limit(2))
		assert.Equal(t, all[4:], page)
		assert.Empty(t, cursor)
	})

	t.Run("exact final page has no cursor", func(t *testing.T) {
		page, cursor := Paginate(all, 3, Limit(2))
		assert.Equal(t, all[3:], page)
		assert.Empty(t, cursor)
	})

	t.Run("offset past end", func(t *testing.T) {
		page, cursor := Paginate(all, 9, Limit(2))
		assert.Empty(t, page)
		assert.NotNil(t, page)
		assert.Empty(t, cursor)
	})

	t.Run("page does not alias input", func(t *testing.T) {
		page, _ := Paginate(all, 0, Limit(1))
		page[0].Key = "changed"
		assert.Equal(t, "/dir/file-00", all[0].Key)
	})
}

func TestPaginate_Exhaustive(t *testing.T) {
	for _, total := range []int{0, 1, 7, 10} {
		for _, limit := range []int{1, 3, 10, 11} {
			t.Run(fmt.Sprintf("total=%d/limit=%d", total, limit), func(t *testing.T) {
				all := entries(total)
				var got []ListEntry
				cursor := ""
				for i := 0; i <= total; i++ {
					offset, err := ParseCursor(cursor)
					require.NoError(t, err)
					page, next := Paginate(all, offset, Limit(limit))
					got = append(got, page...)
					if next == "" {
						break
					}
					cursor = next
				}
				assert.Equal(t, len(all), len(got))
				if total > 0 {
					assert.Equal(t, all, got)
				}
			})
		}
	}
}
