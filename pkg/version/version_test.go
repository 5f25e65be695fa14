package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	assert.NotEmpty(t, GetVersion())
	assert.NotEmpty(t, GetGitCommit())
	assert.NotEmpty(t, GetBuildDate())
	assert.Contains(t, String(), GetVersion())
}

func TestIsDevelopment(t *testing.T) {
	orig := version
	t.Cleanup(func() { version = orig })

	version = "0.1.0-dev"
	assert.True(t, IsDevelopment())

	version = "1.2.3"
	assert.False(t, IsDevelopment())

	version = "not-a-version"
	assert.True(t, IsDevelopment())
}

func TestCheck(t *testing.T) {
	tests := []struct {
		version    string
		constraint string
		want       bool
		wantErr    bool
	}{
		{"1.2.3", ">= 1.0.0", true, false},
		{"0.9.0", ">= 1.0.0", false, false},
		{"1.4.0", "^1.2", true, false},
		{"2.0.0", "^1.2", false, false},
		{"1", ">= 1.0.0", true, false},
		{"garbage", ">= 1.0.0", false, true},
		{"1.0.0", "not a constraint", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.version+" "+tt.constraint, func(t *testing.T) {
			got, err := check(tt.version, tt.constraint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
