package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FakeProcessor is a shell script standing in for the external analysis
// program. Every invocation appends "<input>|<archive flag>" to CallLog.
type FakeProcessor struct {
	Path    string
	CallLog string
}

// FakeProcessorSpec describes what the fake program does when run.
type FakeProcessorSpec struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Sleep delays the exit, e.g. "5" for five seconds.
	Sleep string
}

// NewFakeProcessor writes an executable script into a temp dir. Tests
// calling it are skipped on Windows.
func NewFakeProcessor(t *testing.T, spec FakeProcessorSpec) *FakeProcessor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake processor requires a POSIX shell")
	}
	fp, err := WriteFakeProcessor(t.TempDir(), spec)
	if err != nil {
		t.Fatalf("write fake processor: %v", err)
	}
	return fp
}

// WriteFakeProcessor writes the script into dir. It is the building block
// for callers without a *testing.T, such as godog step definitions.
func WriteFakeProcessor(dir string, spec FakeProcessorSpec) (*FakeProcessor, error) {
	fp := &FakeProcessor{
		Path:    filepath.Join(dir, "fake-processor.sh"),
		CallLog: filepath.Join(dir, "calls.log"),
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "printf '%%s|%%s\\n' \"$1\" \"$2\" >> %s\n", shellQuote(fp.CallLog))
	fmt.Fprintf(&b, "if [ ! -f \"$1\" ]; then echo \"missing input $1\" >&2; exit 3; fi\n")
	if spec.Sleep != "" {
		fmt.Fprintf(&b, "sleep %s\n", spec.Sleep)
	}
	if spec.Stdout != "" {
		fmt.Fprintf(&b, "printf %%s %s\n", shellQuote(spec.Stdout))
	}
	if spec.Stderr != "" {
		fmt.Fprintf(&b, "printf %%s %s >&2\n", shellQuote(spec.Stderr))
	}
	fmt.Fprintf(&b, "exit %d\n", spec.ExitCode)

	if err := os.WriteFile(fp.Path, []byte(b.String()), 0o755); err != nil { //nolint:gosec // test script must be executable
		return nil, err
	}
	return fp, nil
}

// Calls returns the logged invocations as [input, flag] pairs.
func (fp *FakeProcessor) Calls(t *testing.T) [][2]string {
	t.Helper()
	calls, err := fp.ReadCalls()
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return calls
}

// ReadCalls is Calls for callers without a *testing.T.
func (fp *FakeProcessor) ReadCalls() ([][2]string, error) {
	data, err := os.ReadFile(fp.CallLog)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var calls [][2]string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		input, flag, _ := strings.Cut(line, "|")
		calls = append(calls, [2]string{input, flag})
	}
	return calls, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
