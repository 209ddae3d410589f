package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"cilscope/internal/cilfmt"
	"cilscope/internal/disasm"
	"cilscope/internal/output"
)

// run executes the root command with an empty config file so the test does
// not depend on cilscope.toml files above the working directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "cilscope.toml")
	if err := os.WriteFile(cfg, nil, 0644); err != nil {
		t.Fatal(err)
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSigCommand(t *testing.T) {
	tests := []struct {
		hex  string
		want string
	}{
		{"00 02 01 08 0E", "void(int32, string)"},
		{"0002080e1c", "int32(string, object)"},
	}
	for _, tt := range tests {
		got, err := run(t, "sig", "--hex", tt.hex)
		if err != nil {
			t.Fatalf("sig %s: %v", tt.hex, err)
		}
		if strings.TrimSpace(got) != tt.want {
			t.Errorf("sig %s = %q, want %q", tt.hex, got, tt.want)
		}
	}
}

func TestSigCommandErrors(t *testing.T) {
	if _, err := run(t, "sig", "--hex", "zz"); err == nil {
		t.Error("bad hex: expected error")
	}
	// class token without an assembly to resolve it
	_, err := run(t, "sig", "--hex", "00 01 01 12 08")
	if !errors.Is(err, cilfmt.ErrResolution) {
		t.Errorf("class token: err = %v, want resolution error", err)
	}
	if _, err := run(t, "sig"); err == nil {
		t.Error("missing --hex: expected error")
	}
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cilscope.toml")
	if err := os.WriteFile(path, []byte("[analysis]\nmax_steps = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	g := &globals{configPath: path, strict: true}
	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&g.maxSteps, "max-steps", 0, "")
	if err := g.setup(cmd); err != nil {
		t.Fatal(err)
	}
	if opts := g.cfg.Options(); opts.Mode != cilfmt.ModeStrict || opts.MaxSteps != 7 {
		t.Errorf("Options() = %+v, want strict with max steps 7", opts)
	}

	if err := cmd.ParseFlags([]string{"--max-steps", "42"}); err != nil {
		t.Fatal(err)
	}
	if err := g.setup(cmd); err != nil {
		t.Fatal(err)
	}
	if g.cfg.Analysis.MaxSteps != 42 {
		t.Errorf("MaxSteps = %d, want 42", g.cfg.Analysis.MaxSteps)
	}
}

func TestMethodFile(t *testing.T) {
	got := methodFile("Demo.Box`1", "Demo.Box`1::.ctor", "0x06000002")
	want := filepath.Join("Demo.Box_1", ".ctor_0x06000002")
	if got != want {
		t.Errorf("methodFile = %q, want %q", got, want)
	}
	got = methodFile("Demo.Widget", "Demo.Widget::op_Implicit<T>", "0x06000010")
	want = filepath.Join("Demo.Widget", "op_Implicit_T__0x06000010")
	if got != want {
		t.Errorf("methodFile = %q, want %q", got, want)
	}
}

func writeRecords[T any](t *testing.T, dir, name string, recs []T) {
	t.Helper()
	w, err := output.CreateJSONL(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	for i := range recs {
		if err := w.Encode(&recs[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	methods := []disasm.MethodRecord{
		{Token: "0x06000001", Name: "App.Program::Main", Owner: "App.Program", CodeSize: 6, Insts: 2},
		{Token: "0x06000002", Name: "App.Program::Run", Owner: "App.Program", CodeSize: 3, Insts: 2},
		{Token: "0x06000003", Name: "App.Util::Broken", Owner: "App.Util", Invalid: true, Error: "IL_0000: truncated"},
	}
	edges := []disasm.CallEdgeRecord{
		{FromFunc: "App.Program::Main", FromIL: "IL_0000", Kind: "call", Target: "App.Program::Run", Resolved: true},
		{FromFunc: "App.Program::Run", FromIL: "IL_0000", Kind: "call", Token: "0x0A000001"},
	}
	writeRecords(t, dir, "methods.jsonl", methods)
	writeRecords(t, dir, "call_edges.jsonl", edges)

	// call 0x0A000001; ret
	stem := methodFile("App.Program", "App.Program::Main", "0x06000001")
	if err := output.WriteBin(dir, stem, []byte{0x28, 0x01, 0x00, 0x00, 0x0A, 0x2A}); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "render", "--in", dir, "--cfg", "--title", "App"); err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, name := range []string{"reachable.dot", "callgraph.dot", "classgraph.dot", "index.html"} {
		if _, err := os.Stat(filepath.Join(dir, "render", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	cfg, err := os.ReadFile(filepath.Join(dir, "render", "cfg", "App.Program__Main.dot"))
	if err != nil {
		t.Fatalf("cfg: %v", err)
	}
	if !strings.Contains(string(cfg), "IL_0005") {
		t.Errorf("cfg DOT has no ret label:\n%s", cfg)
	}
	html, err := os.ReadFile(filepath.Join(dir, "render", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), "App.Util::Broken") {
		t.Error("index.html does not list the invalid method")
	}
}

func TestRenderMissingInput(t *testing.T) {
	if _, err := run(t, "render", "--in", t.TempDir()); err == nil {
		t.Error("expected error for missing methods.jsonl")
	}
}
