package redact

import (
	"errors"
	"testing"

	"github.com/andresmejia3/redactor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortFrameKeys(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "Multi-digit indices",
			in:   []string{"f_2.jpg", "f_10.jpg", "f_1.jpg"},
			want: []string{"f_1.jpg", "f_2.jpg", "f_10.jpg"},
		},
		{
			name: "Full storage keys sort by basename",
			in: []string{
				"private/assets/a/output/w/blur/Face/frame_100.jpg",
				"private/assets/a/output/w/blur/Face/frame_9.jpg",
				"private/assets/a/output/w/blur/Face/frame_11.jpg",
			},
			want: []string{
				"private/assets/a/output/w/blur/Face/frame_9.jpg",
				"private/assets/a/output/w/blur/Face/frame_11.jpg",
				"private/assets/a/output/w/blur/Face/frame_100.jpg",
			},
		},
		{
			name: "Leading zeros compare by value",
			in:   []string{"f_010.jpg", "f_9.jpg", "f_0001.jpg"},
			want: []string{"f_0001.jpg", "f_9.jpg", "f_010.jpg"},
		},
		{
			name: "Empty input",
			in:   []string{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SortFrameKeys(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, SortFrameKeys(got), "sorting must be idempotent")
		})
	}
}

func TestSortFrameKeys_DoesNotMutateInput(t *testing.T) {
	in := []string{"f_3.jpg", "f_1.jpg"}
	_ = SortFrameKeys(in)
	assert.Equal(t, []string{"f_3.jpg", "f_1.jpg"}, in)
}

func TestSortFrameKeys_StableOnDuplicates(t *testing.T) {
	in := []string{"b/f_2.jpg", "a/f_2.jpg", "c/f_1.jpg"}
	assert.Equal(t, []string{"c/f_1.jpg", "b/f_2.jpg", "a/f_2.jpg"}, SortFrameKeys(in))
}

func TestParseFrameIndex(t *testing.T) {
	n, err := ParseFrameIndex("private/assets/x1/frames/frame_42.jpg")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = ParseFrameIndex("id_7.png")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ParseFrameIndex("cover.jpg")
	assert.True(t, errors.Is(err, types.ErrInput))
}
