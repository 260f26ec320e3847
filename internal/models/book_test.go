package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/shelf/internal/models"
)

func TestJoinThemes(t *testing.T) {
	assert.Equal(t, "sci-fi, politics", models.JoinThemes([]string{"sci-fi", "politics"}))
	assert.Equal(t, "", models.JoinThemes(nil))
}

func TestDecodeThemes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "blank", in: "   ", want: []string{}},
		{name: "single", in: "fantasy", want: []string{"fantasy"}},
		{name: "several", in: "sci-fi, politics, ecology", want: []string{"sci-fi", "politics", "ecology"}},
		{name: "drops empty parts", in: "a, , b", want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DecodeThemes(tt.in))
		})
	}
}
