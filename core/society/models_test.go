package society_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/iems/core/society"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Coding Club", "coding-club"},
		{"  Coding \t Club ", "coding-club"},
		{"AI/ML Society", "ai-ml-society"},
		{"Q&A? Forum", "q&a-forum"},
		{"C# Users", "c-users"},
		{"100% Fitness", "100-fitness"},
		{`Back\Slash`, "back-slash"},
		{"#hashtag", "hashtag"},
		{"/?#", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, society.Slugify(tt.name))
		})
	}
}
