package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowAt(t *testing.T) {
	tests := []struct {
		name string
		now  int64
		want Window
	}{
		{"epoch", 0, Window{ID: 0, Start: 0, End: 60000}},
		{"inside first", 59999, Window{ID: 0, Start: 0, End: 60000}},
		{"boundary", 60000, Window{ID: 1, Start: 60000, End: 120000}},
		{"scenario", 1_700_000_000_000, Window{ID: 28333333, Start: 1_699_999_980_000, End: 1_700_000_040_000}},
		{"negative", -1, Window{ID: -1, Start: -60000, End: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WindowAt(tt.now))
		})
	}
}

func TestWithin(t *testing.T) {
	tol := SkewTolerance.Milliseconds()

	assert.True(t, Within(1000, 1000, 2000, 0))
	assert.True(t, Within(2000, 1000, 2000, 0))
	assert.False(t, Within(999, 1000, 2000, 0))
	assert.True(t, Within(1000-tol, 1000, 2000, tol))
	assert.True(t, Within(2000+tol, 1000, 2000, tol))
	assert.False(t, Within(2001+tol, 1000, 2000, tol))
}

func TestWindow_Contains(t *testing.T) {
	w := WindowAt(1_700_000_000_000)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.Start-2000))
	assert.False(t, w.Contains(w.Start-2001))
	assert.True(t, w.Contains(w.End+2000))
	assert.False(t, w.Contains(w.End+2001))
}
