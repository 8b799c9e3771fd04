package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/specguard/pkg/output"
	"github.com/3leaps/specguard/pkg/provider"
)

const invalidYAML = "items: [one, two\n"

func TestValidate_MixedTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: a\n")
	writeFile(t, dir, "b.yml", invalidYAML)

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, 1, code)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Validating YAML files in "+dir+"...", lines[0])
	assert.Equal(t, "✓ "+filepath.Join(dir, "a.yaml"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "✗ Schema error in "+filepath.Join(dir, "b.yml")+": "), lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "1 files failed validation", lines[4])
}

func TestValidate_AllValid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: a\n")
	writeFile(t, dir, "nested/deep/c.yml", "- one\n- two\n")
	writeFile(t, dir, "dup.yaml", "a: 1\na: 2\n")
	writeFile(t, dir, "empty.yaml", "")
	writeFile(t, dir, "notes.txt", invalidYAML)
	writeFile(t, dir, "data.json", invalidYAML)

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, foundry.ExitSuccess, code)
	assert.Contains(t, stdout, "✓ "+filepath.Join(dir, "nested", "deep", "c.yml")+"\n")
	assert.Equal(t, 4, strings.Count(stdout, "✓ "+dir))
	assert.NotContains(t, stdout, "notes.txt")
	assert.NotContains(t, stdout, "data.json")
	assert.True(t, strings.HasSuffix(stdout, "\n✓ All YAML files are valid\n"), stdout)
}

func TestValidate_LoaderRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dup.yaml", "a: 1\na: 2\n")
	writeFile(t, dir, "good.yaml", "name: good\n")
	writeFile(t, dir, "multi.yaml", "a: 1\n---\nb: 2\n")
	writeFile(t, dir, "tag.yaml", "x: !Ref foo\n")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout, "✓ "+filepath.Join(dir, "dup.yaml")+"\n")
	assert.Contains(t, stdout, "✓ "+filepath.Join(dir, "good.yaml")+"\n")
	assert.Contains(t, stdout, "✗ Schema error in "+filepath.Join(dir, "multi.yaml")+": ")
	assert.Contains(t, stdout, "expected a single document in the stream")
	assert.Contains(t, stdout, "✗ Schema error in "+filepath.Join(dir, "tag.yaml")+": ")
	assert.Contains(t, stdout, "could not determine a constructor for the tag '!Ref'")
	assert.Contains(t, stdout, "\n2 files failed validation\n")
}

func TestValidate_DanglingSymlinkCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "a: 1\n")
	if err := os.Symlink(filepath.Join(dir, "gone.yaml"), filepath.Join(dir, "x.yaml")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "✓ "+filepath.Join(dir, "a.yaml")+"\n")
	assert.Contains(t, stdout, "✗ Schema error in "+filepath.Join(dir, "x.yaml")+": ")
	assert.Contains(t, stdout, "\n1 files failed validation\n")
}

func TestValidate_Timeout(t *testing.T) {
	dir := t.TempDir()
	for i := range 5 {
		writeFile(t, dir, fmt.Sprintf("f%d.yaml", i), "ok: true\n")
	}
	t.Setenv("SPECGUARD_TIMEOUT", "1ns")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, foundry.ExitFailure, code)
	assert.Contains(t, stdout, "ERROR: Validation timed out after 1ns\n")
	assert.NotContains(t, stdout, "Schema validation failed")
	assert.NotContains(t, stdout, "files failed validation")
}

func TestValidate_NoTimeoutByDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "a: 1\n")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, foundry.ExitSuccess, code)
	assert.NotContains(t, stdout, "timed out")
}

func TestValidate_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, foundry.ExitSuccess, code)
	assert.Equal(t, "Validating YAML files in "+dir+"...\n\n✓ All YAML files are valid\n", stdout)
}

func TestValidate_ExitCodeIsFailureCount(t *testing.T) {
	dir := t.TempDir()
	for i := range 3 {
		writeFile(t, dir, fmt.Sprintf("bad%d.yaml", i), invalidYAML)
	}
	for i := range 2 {
		writeFile(t, dir, fmt.Sprintf("good%d.yaml", i), "ok: true\n")
	}

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir)
	assert.Equal(t, 3, code)
	assert.Equal(t, 2, strings.Count(stdout, "✓ "))
	assert.Equal(t, 3, strings.Count(stdout, "✗ Schema error in "))
	assert.Contains(t, stdout, "\n3 files failed validation\n")
}

func TestValidate_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.yaml", "z: 1\n")
	writeFile(t, dir, "a/b.yml", invalidYAML)
	writeFile(t, dir, "m.yaml", "m: 1\n")
	writeFile(t, dir, ".hidden/h.yaml", "h: 1\n")

	first, _, code1 := runTool(t, NewValidateCmd(), "--root", dir)
	second, _, code2 := runTool(t, NewValidateCmd(), "--root", dir)

	assert.Equal(t, code1, code2)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "✓ "+filepath.Join(dir, ".hidden", "h.yaml"))
}

func TestValidate_RootNotFound(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nope")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", root)
	assert.Equal(t, foundry.ExitFailure, code)
	assert.Equal(t, "ERROR: Root directory not found: "+root+"\n", stdout)
}

func TestValidate_RootIsFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.yaml", "a: 1\n")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", path)
	assert.Equal(t, foundry.ExitFailure, code)
	assert.Equal(t, "ERROR: Root directory not found: "+path+"\n", stdout)
}

func TestValidate_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"--root"}, {"--root", ""}} {
		stdout, stderr, code := runTool(t, NewValidateCmd(), args...)
		assert.Equal(t, foundry.ExitFailure, code)
		assert.Equal(t, validateUsage+"\n", stdout)
		assert.Empty(t, stderr)
	}
}

func TestValidate_ExcludeAndInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "specs/a.yaml", "a: 1\n")
	writeFile(t, dir, "vendor/broken.yaml", invalidYAML)
	writeFile(t, dir, "specs/openapi.json.tmpl", invalidYAML)

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir, "--exclude", "vendor/**")
	assert.Equal(t, foundry.ExitSuccess, code)
	assert.NotContains(t, stdout, "broken.yaml")

	stdout, _, code = runTool(t, NewValidateCmd(), "--root", dir, "--include", "vendor/*.yaml")
	assert.Equal(t, 1, code)
	assert.NotContains(t, stdout, "a.yaml")
	assert.Contains(t, stdout, "broken.yaml")
}

func TestValidate_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tree/ok.yaml", "a: 1\n")
	writeFile(t, dir, "tree/skip/bad.yaml", invalidYAML)
	cfgPath := writeFile(t, dir, "specguard.yaml", "scan:\n  excludes:\n    - \"skip/**\"\n  concurrency: 2\n")

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", filepath.Join(dir, "tree"), "--config", cfgPath)
	assert.Equal(t, foundry.ExitSuccess, code)
	assert.NotContains(t, stdout, "bad.yaml")
}

func TestValidate_Concurrency(t *testing.T) {
	dir := t.TempDir()
	for i := range 20 {
		writeFile(t, dir, fmt.Sprintf("dir%d/f.yaml", i), "ok: true\n")
	}
	writeFile(t, dir, "dir3/bad.yml", invalidYAML)

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir, "--concurrency", "4")
	assert.Equal(t, 1, code)
	assert.Equal(t, 20, strings.Count(stdout, "✓ "+dir))
}

func TestValidate_JSONLOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "a: 1\n")
	writeFile(t, dir, "b.yml", invalidYAML)

	stdout, _, code := runTool(t, NewValidateCmd(), "--root", dir, "--output", "jsonl")
	assert.Equal(t, 1, code)

	var types []string
	var runID string
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		types = append(types, rec.Type)
		if runID == "" {
			runID = rec.RunID
		}
		assert.Equal(t, runID, rec.RunID)
		assert.Equal(t, "file", rec.Provider)

		if rec.Type == output.TypeSummary {
			var sum output.SummaryRecord
			require.NoError(t, json.Unmarshal(rec.Data, &sum))
			assert.Equal(t, int64(2), sum.FilesMatched)
			assert.Equal(t, int64(1), sum.FilesValid)
			assert.Equal(t, int64(1), sum.FilesFailed)
		}
	}
	assert.NotEmpty(t, runID)
	assert.Equal(t, []string{output.TypeStart, output.TypeFile, output.TypeFile, output.TypeSummary}, types)
}

func TestValidate_InvalidOutputFormat(t *testing.T) {
	_, stderr, code := runTool(t, NewValidateCmd(), "--root", t.TempDir(), "--output", "xml")
	assert.Equal(t, foundry.ExitFailure, code)
	assert.Contains(t, stderr, "ERROR: Invalid configuration")
}

func TestDisplayPaths(t *testing.T) {
	local, err := ParseLocation("./specs/")
	require.NoError(t, err)
	assert.Equal(t, "specs", displayRoot(local))
	assert.Equal(t, filepath.Join("specs", "api", "v1.yaml"), displayPathFunc(local)("api/v1.yaml"))

	remote, err := ParseLocation("s3://team-specs/api")
	require.NoError(t, err)
	assert.Equal(t, "s3://team-specs/api/", displayRoot(remote))
	assert.Equal(t, "s3://team-specs/api/v1/users.yaml", displayPathFunc(remote)("v1/users.yaml"))

	bucket, err := ParseLocation("s3://team-specs")
	require.NoError(t, err)
	assert.Equal(t, "s3://team-specs/a.yaml", displayPathFunc(bucket)("a.yaml"))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&provider.ProviderError{Op: "List", Provider: provider.ProviderS3, Err: provider.ErrBucketNotFound}, output.ErrCodeNotFound},
		{&provider.ProviderError{Op: "List", Provider: provider.ProviderS3, Err: provider.ErrAccessDenied}, output.ErrCodeAccessDenied},
		{&provider.ProviderError{Op: "List", Provider: provider.ProviderS3, Err: provider.ErrInvalidCredentials}, output.ErrCodeAccessDenied},
		{&provider.ProviderError{Op: "List", Provider: provider.ProviderS3, Err: provider.ErrThrottled}, output.ErrCodeThrottled},
		{errors.New("boom"), output.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}
