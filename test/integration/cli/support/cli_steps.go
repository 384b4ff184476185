package support

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/lotlens/cmd/lotlens/cmd"
)

// RegisterCLISteps registers steps that run the lotlens command in-process.
func (tc *TestContext) RegisterCLISteps(sc *godog.ScenarioContext) {
	sc.Step(`^a local file "([^"]*)"$`, tc.aLocalFile)
	sc.Step(`^I run lotlens process on "([^"]*)"$`, func(name string) error { return tc.runProcess(name) })
	sc.Step(`^I run lotlens process on "([^"]*)" with "([^"]*)"$`, func(name, extra string) error {
		return tc.runProcess(name, strings.Fields(extra)...)
	})
	sc.Step(`^the command should succeed$`, tc.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, tc.theCommandShouldFail)
	sc.Step(`^the command output should be:$`, tc.theCommandOutputShouldBe)
	sc.Step(`^the command error should contain "([^"]*)"$`, tc.theCommandErrorShouldContain)
}

func (tc *TestContext) aLocalFile(name string) error {
	return os.WriteFile(filepath.Join(tc.TempDir, name), []byte("payload of "+name), 0o600)
}

func (tc *TestContext) runProcess(name string, extra ...string) error {
	root := cmd.GetRootCommand()
	resetFlags(root)

	var out bytes.Buffer
	args := append([]string{
		"process", filepath.Join(tc.TempDir, name),
		"--processor-command", tc.Fake.Path,
		"--processor-arg=",
		"--staging-dir", tc.StagingDir,
		"--public-dir", tc.PublicDir,
	}, extra...)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)

	tc.CommandErr = root.Execute()
	tc.CommandOutput = out.String()
	return nil
}

// resetFlags restores every flag to its default so that values from an
// earlier scenario do not leak into the next run.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			var def []string
			if v := strings.Trim(f.DefValue, "[]"); v != "" {
				def = strings.Split(v, ",")
			}
			_ = sv.Replace(def)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (tc *TestContext) theCommandShouldSucceed() error {
	if tc.CommandErr != nil {
		return fmt.Errorf("command failed: %w\n%s", tc.CommandErr, tc.CommandOutput)
	}
	return nil
}

func (tc *TestContext) theCommandShouldFail() error {
	if tc.CommandErr == nil {
		return errors.New("expected command to fail")
	}
	return nil
}

func (tc *TestContext) theCommandOutputShouldBe(doc *godog.DocString) error {
	want := strings.TrimSpace(doc.Content)
	if got := strings.TrimSpace(tc.CommandOutput); got != want {
		return fmt.Errorf("expected output %q, got %q", want, got)
	}
	return nil
}

func (tc *TestContext) theCommandErrorShouldContain(text string) error {
	if tc.CommandErr == nil {
		return errors.New("command succeeded")
	}
	if !strings.Contains(tc.CommandErr.Error(), text) {
		return fmt.Errorf("expected error to contain %q, got %q", text, tc.CommandErr.Error())
	}
	return nil
}
