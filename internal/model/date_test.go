package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDateOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "2026-09-30", want: "2026-09-30"},
		{in: "2026-09-30T18:45:00Z", want: "2026-09-30"},
		{in: "2026-09-30T18:45:00.123+02:00", want: "2026-09-30"},
		{in: "2026-09-30 08:00:00", want: "2026-09-30"},
		{in: "last tuesday", want: "last tuesday"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DateOnly(tt.in), tt.in)
	}
}
