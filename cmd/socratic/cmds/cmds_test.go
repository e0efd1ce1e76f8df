package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/socratic/pkg/config"
	"github.com/go-go-golems/socratic/pkg/tutor"
	"github.com/go-go-golems/socratic/pkg/tutor/scripted"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("v0.0.1-test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "disabled", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, "v0.0.1-test\n", out)
}

func TestExplicitConfigMustExist(t *testing.T) {
	_, err := execute(t, "", "ask", "--backend", "scripted", "hi")
	require.ErrorContains(t, err, "loading config")
}

func TestAskStreamsScriptedReply(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "socratic.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model:\n  backend: scripted\n"), 0o644))

	root := NewRootCommand("dev")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--log-level", "disabled", "--config", cfgPath, "ask", "What", "is", "2+3?"})
	require.NoError(t, root.Execute())

	want := scripted.DefaultReply(1, tutor.Request{Text: "What is 2+3?"})
	require.Equal(t, want+"\n", out.String())
}

func TestAskRejectsEmptyStdin(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "socratic.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model:\n  backend: scripted\n"), 0o644))

	root := NewRootCommand("dev")
	root.SetIn(strings.NewReader("   \n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--log-level", "disabled", "--config", cfgPath, "ask"})
	err := root.Execute()
	require.ErrorIs(t, err, tutor.ErrEmptyMessage)
}

func TestReadAttachmentSniffsMediaType(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "problem.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644))
	att, err := readAttachment(png)
	require.NoError(t, err)
	require.Equal(t, "image/png", att.MediaType)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just words"), 0o644))
	_, err = readAttachment(txt)
	require.ErrorIs(t, err, tutor.ErrUnsupportedAttachment)
}

func TestBuildBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Backend = config.BackendScripted
	b, err := buildBackend(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &scripted.Backend{}, b)

	cfg.Model.Backend = config.BackendGemini
	cfg.Model.APIKey = ""
	_, err = buildBackend(context.Background(), cfg)
	require.ErrorContains(t, err, "API key")

	cfg.Model.Backend = "openai"
	_, err = buildBackend(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown backend")
}
