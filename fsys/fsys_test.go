package fsys

import (
	"bytes"
	"io"
	"reflect"
	"testing"

	"github.com/stvp/assert"
)

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		in       []Extent
		expected []Extent
	}{
		{
			name: "adjacent blocks merge",
			in: []Extent{
				{Logical: 0, Physical: 4096, Length: 1024},
				{Logical: 1024, Physical: 5120, Length: 1024},
			},
			expected: []Extent{{Logical: 0, Physical: 4096, Length: 2048}},
		},
		{
			name: "physical gap splits",
			in: []Extent{
				{Logical: 0, Physical: 4096, Length: 1024},
				{Logical: 1024, Physical: 8192, Length: 1024},
			},
			expected: []Extent{
				{Logical: 0, Physical: 4096, Length: 1024},
				{Logical: 1024, Physical: 8192, Length: 1024},
			},
		},
		{
			name: "logical gap splits",
			in: []Extent{
				{Logical: 0, Physical: 4096, Length: 1024},
				{Logical: 2048, Physical: 5120, Length: 1024},
			},
			expected: []Extent{
				{Logical: 0, Physical: 4096, Length: 1024},
				{Logical: 2048, Physical: 5120, Length: 1024},
			},
		},
		{
			name:     "empty extents dropped",
			in:       []Extent{{Logical: 0, Physical: 10, Length: 0}},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Coalesce(tt.in)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Coalesce() =\n%v\nwant:\n%v", result, tt.expected)
			}
		})
	}
}

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestExtentReaderAtAcrossExtents(t *testing.T) {
	base := patterned(4000)
	// logical [0,100) -> [1000,1100), [100,200) -> [3000,3100)
	r := NewExtentReaderAt(bytes.NewReader(base), []Extent{
		{Logical: 100, Physical: 3000, Length: 100},
		{Logical: 0, Physical: 1000, Length: 100},
	}, 200)

	buf := make([]byte, 20)
	n, err := r.ReadAt(buf, 90)
	assert.Nil(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, base[1090:1100], buf[:10])
	assert.Equal(t, base[3000:3010], buf[10:])

	all, err := io.ReadAll(io.NewSectionReader(r, 0, r.Size()))
	assert.Nil(t, err)
	assert.Equal(t, 200, len(all))
	assert.Equal(t, base[1000:1100], all[:100])
	assert.Equal(t, base[3000:3100], all[100:])
}

func TestExtentReaderAtHolesReadAsZero(t *testing.T) {
	base := bytes.Repeat([]byte{0xAA}, 512)
	r := NewExtentReaderAt(bytes.NewReader(base), []Extent{
		{Logical: 64, Physical: 0, Length: 64},
	}, 256)

	buf := bytes.Repeat([]byte{0xFF}, 256)
	n, err := r.ReadAt(buf, 0)
	assert.Nil(t, err)
	assert.Equal(t, 256, n)
	assert.Equal(t, make([]byte, 64), buf[:64])
	assert.Equal(t, base[:64], buf[64:128])
	assert.Equal(t, make([]byte, 128), buf[128:])
}

func TestExtentReaderAtBounds(t *testing.T) {
	r := NewExtentReaderAt(bytes.NewReader(patterned(100)), []Extent{
		{Logical: 0, Physical: 0, Length: 100},
	}, 50)

	buf := make([]byte, 20)
	n, err := r.ReadAt(buf, 40)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 10, n)

	n, err = r.ReadAt(buf, 50)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)

	_, err = r.ReadAt(buf, -1)
	assert.True(t, err != nil)
}

func TestExtentReaderAtTruncatedImage(t *testing.T) {
	r := NewExtentReaderAt(bytes.NewReader(patterned(10)), []Extent{
		{Logical: 0, Physical: 5, Length: 20},
	}, 20)

	buf := make([]byte, 20)
	n, err := r.ReadAt(buf, 0)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, 5, n)
}
