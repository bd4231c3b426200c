package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func tod(h, m int) *datatypes.Time {
	t := datatypes.NewTime(h, m, 0, 0)
	return &t
}

func at(h, m int) time.Time {
	return time.Date(2024, 5, 10, h, m, 0, 0, time.UTC)
}

func TestCanOrderAt(t *testing.T) {
	tests := []struct {
		name     string
		from, to *datatypes.Time
		now      time.Time
		want     bool
	}{
		{"no restriction", nil, nil, at(3, 0), true},
		{"inside window", tod(8, 0), tod(12, 0), at(10, 0), true},
		{"before window", tod(8, 0), tod(12, 0), at(7, 59), false},
		{"after window", tod(8, 0), tod(12, 0), at(12, 30), false},
		{"exactly at from", tod(8, 0), tod(12, 0), at(8, 0), false},
		{"exactly at to", tod(8, 0), tod(12, 0), at(12, 0), false},
		{"only from, later", tod(8, 0), nil, at(23, 0), true},
		{"only from, earlier", tod(8, 0), nil, at(7, 0), false},
		{"only to, earlier", nil, tod(12, 0), at(0, 30), true},
		{"only to, later", nil, tod(12, 0), at(13, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := MenuCategory{FromTime: tt.from, ToTime: tt.to}
			assert.Equal(t, tt.want, c.CanOrderAt(tt.now))
		})
	}
}

func TestHasTimeRestriction(t *testing.T) {
	assert.False(t, (&MenuCategory{}).HasTimeRestriction())
	assert.True(t, (&MenuCategory{ToTime: tod(1, 0)}).HasTimeRestriction())
}
