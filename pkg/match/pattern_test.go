package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"specs/**/*.yaml", "specs/**/*.yaml"},
		{`specs\prod`, "specs/prod"},
		{`specs\prod\*.yaml`, `specs/prod\*.yaml`},
		{`specs/file\*.yaml`, `specs/file\*.yaml`},
		{`specs/\[v1\]/*.yaml`, `specs/\[v1\]/*.yaml`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePattern(tt.in))
		})
	}
}

func TestIsHidden(t *testing.T) {
	assert.False(t, IsHidden("specs/a.yaml"))
	assert.False(t, IsHidden("a.yaml"))
	assert.True(t, IsHidden(".github/ci.yml"))
	assert.True(t, IsHidden("specs/.draft.yaml"))
	assert.True(t, IsHidden("a/.b/c.yaml"))
}

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"", ""},
		{"**/*.y*ml", ""},
		{"*.yaml", ""},
		{"specs/**/*.yaml", "specs/"},
		{"specs/prod-*/*.yaml", "specs/"},
		{"specs/prod/backup.yaml", "specs/prod/backup.yaml"},
		{`specs/\[v1\]/*.yaml`, "specs/[v1]/"},
		{"specs/{a,b}/*.yaml", "specs/"},
		{"specs/?.yaml", "specs/"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePrefix(tt.pattern))
		})
	}
}

func TestDerivePrefixes(t *testing.T) {
	assert.Nil(t, DerivePrefixes(nil))
	assert.Equal(t, []string{""}, DerivePrefixes([]string{"specs/*.yaml", "**/*.yml"}))
	assert.Equal(t,
		[]string{"specs/"},
		DerivePrefixes([]string{"specs/prod/*.yaml", "specs/**/*.yml"}),
	)
	assert.Equal(t,
		[]string{"a/", "b/"},
		DerivePrefixes([]string{"b/*.yaml", "a/*.yaml", "a/x/*.yaml"}),
	)
}

func TestIsGlobPattern(t *testing.T) {
	assert.True(t, IsGlobPattern("**/*.yaml"))
	assert.True(t, IsGlobPattern("a?.yaml"))
	assert.True(t, IsGlobPattern("{a,b}.yaml"))
	assert.False(t, IsGlobPattern("specs/backup.yaml"))
	assert.False(t, IsGlobPattern(`specs/\*.yaml`))
}
