package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeFilterValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain name",
			input: "Fatima Al-Sayed",
			want:  "Fatima Al-Sayed",
		},
		{
			name:  "embedded quote",
			input: `Bob "Bobby" Lee`,
			want:  `Bob \"Bobby\" Lee`,
		},
		{
			name:  "embedded backslash",
			input: `DOMAIN\alice`,
			want:  `DOMAIN\\alice`,
		},
		{
			name:  "backslash before quote stays escaped",
			input: `tricky\"name`,
			want:  `tricky\\\"name`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeFilterValue(tt.input))
		})
	}
}
