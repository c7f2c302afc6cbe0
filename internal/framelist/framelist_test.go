package framelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want []int64
	}{
		{name: "single frame", in: "7", want: []int64{7}},
		{name: "range", in: "1-4", want: []int64{1, 2, 3, 4}},
		{name: "stepped range", in: "1-10x3", want: []int64{1, 4, 7, 10}},
		{name: "list", in: "5,1,3", want: []int64{1, 3, 5}},
		{name: "negative range", in: "-3--1", want: []int64{-3, -2, -1}},
		{name: "negative to positive", in: "-1-1", want: []int64{-1, 0, 1}},
		{name: "duplicates removed", in: "1-3,2,3-4", want: []int64{1, 2, 3, 4}},
		{name: "whitespace", in: " 1 , 2-3 ", want: []int64{1, 2, 3}},
		{name: "single frame range", in: "2-2", want: []int64{2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "a", "1-", "1-b", "5-1", "1-5x0", "1-5x-1", "1,,2", "3x2", "1-5xq"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1-5", Format([]int64{1, 2, 3, 4, 5}))
	assert.Equal(t, "1-9x2", Format([]int64{1, 3, 5, 7, 9}))
	assert.Equal(t, "1,2", Format([]int64{1, 2}))
	assert.Equal(t, "1-3,10", Format([]int64{1, 2, 3, 10}))
	assert.Equal(t, "", Format(nil))

	frames, err := Parse(Format([]int64{-4, -2, 0, 2, 7}))
	require.NoError(t, err)
	assert.Equal(t, []int64{-4, -2, 0, 2, 7}, frames)
}
