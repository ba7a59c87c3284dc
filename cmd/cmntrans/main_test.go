package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/internal/testsupport"
)

type cliTestEnv struct {
	baseDir   string
	gameDir   string
	outputDir string
	assetPath string
	slots     []int64
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:   base,
		gameDir:   filepath.Join(base, "game"),
		outputDir: filepath.Join(base, "out"),
	}

	b := testsupport.NewAssetBuilder().
		Filler(4, 0x42).
		LongBlock(32, []string{"Hello"}, []string{"World"}).
		ShortBlock(16, 9, []string{"Yes"}, nil)
	env.assetPath = testsupport.WriteAsset(t, env.gameDir, filepath.Join("ev01", "cmn.bin"), b.Bytes())
	env.slots = b.SlotOffsets()

	t.Setenv("CMN_GAME_DIR", env.gameDir)
	t.Setenv("CMN_CHANGES_DIR", filepath.Join(base, "changes"))
	t.Setenv("CMN_OUTPUT_DIR", env.outputDir)
	t.Setenv("CMN_DATA_DIR", filepath.Join(base, "data"))
	t.Setenv("CMN_ENCODING", "utf-8")
	t.Setenv("CMN_LONG_WIDTH", "32")
	t.Setenv("CMN_SHORT_WIDTH", "16")
	t.Setenv("CMN_PATTERNS", "cmn.bin")
	t.Setenv("CMN_PROJECT_FILE", filepath.Join(base, "cmntrans.toml"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	return env
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_ScanListsOffsets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, "scan", filepath.Join("ev01", "cmn.bin"))
	require.NoError(t, err)
	assert.Contains(t, out, formatOffset(env.slots[0]))
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "World")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "3 texts (from asset)")
}

func TestCLI_SetThenRebuild(t *testing.T) {
	env := setupCLITestEnv(t)
	rel := filepath.Join("ev01", "cmn.bin")

	out, err := runCLI(t, "set", rel, formatOffset(env.slots[1]), "Monde")
	require.NoError(t, err)
	assert.Contains(t, out, "1/3")

	out, err = runCLI(t, "scan", "--translated", rel)
	require.NoError(t, err)
	assert.Contains(t, out, "Monde")
	assert.NotContains(t, out, "Hello")

	out, err = runCLI(t, "rebuild", rel)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")

	rebuilt, err := os.ReadFile(filepath.Join(env.outputDir, rel))
	require.NoError(t, err)
	original, err := os.ReadFile(env.assetPath)
	require.NoError(t, err)
	require.Len(t, rebuilt, len(original))
	assert.Equal(t, "Monde", string(bytes.TrimRight(rebuilt[env.slots[1]:env.slots[1]+32], "\x00")))

	out, err = runCLI(t, "project", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "manual")
}

func TestCLI_SetEmptyRestoresOriginal(t *testing.T) {
	env := setupCLITestEnv(t)
	rel := filepath.Join("ev01", "cmn.bin")

	_, err := runCLI(t, "set", rel, formatOffset(env.slots[0]), "Bonjour")
	require.NoError(t, err)

	out, err := runCLI(t, "set", rel, formatOffset(env.slots[0]), "")
	require.NoError(t, err)
	assert.Contains(t, out, "0/3")

	out, err = runCLI(t, "scan", "--translated", rel)
	require.NoError(t, err)
	assert.NotContains(t, out, "Bonjour")
}

func TestCLI_SetRejectsOverflow(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, "set", env.assetPath, formatOffset(env.slots[2]), strings.Repeat("x", 17))
	require.Error(t, err)
	assert.True(t, service.Classify(err).Type == service.ErrOverflow)
	assert.Contains(t, describeError(err), "hint:")
}

func TestCLI_ApplyFromTOML(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "fr.toml")
	content := "[translations]\n" +
		"\"" + formatOffset(env.slots[0]) + "\" = \"Bonjour\"\n" +
		"\"" + formatOffset(env.slots[2]) + "\" = \"Oui\"\n"
	require.NoError(t, os.WriteFile(input, []byte(content), 0o644))

	out, err := runCLI(t, "apply", env.assetPath, input)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 translations applied")

	out, err = runCLI(t, "status", env.assetPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2/3")
}

func TestCLI_ProjectCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, "project", "discover")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("ev01", "cmn.bin"))

	out, err = runCLI(t, "project", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")
	assert.FileExists(t, filepath.Join(env.outputDir, "ev01", "cmn.bin"))

	out, err = runCLI(t, "project", "schedule", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "SKIPPED")

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "0/3")

	_, err = runCLI(t, "project", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(env.baseDir, "cmntrans.toml"))
	_, err = runCLI(t, "project", "init")
	assert.Error(t, err)
}

func TestParseOffset(t *testing.T) {
	off, err := parseOffset("0x0000001A")
	require.NoError(t, err)
	assert.EqualValues(t, 26, off)

	off, err = parseOffset("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, off)

	_, err = parseOffset("-1")
	assert.Error(t, err)
	_, err = parseOffset("slot")
	assert.Error(t, err)
}

func TestCell(t *testing.T) {
	assert.Equal(t, `a\nb`, cell("a\nb", 0))
	assert.Equal(t, "abc…", cell("abcdef", 4))
}
