package executor

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/buildrhq/codegen/pkg/types"
)

// runCommand executes a shell-style command inside the workspace under a
// bounded timeout and returns its combined output. err is non-nil for both
// non-zero exits and timeouts; timedOut distinguishes the latter.
func runCommand(ctx context.Context, dir, command string, timeout time.Duration) (output string, timedOut bool, err error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", false, nil
	}

	cmd := exec.CommandContext(execCtx, parts[0], parts[1:]...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	return string(out), execCtx.Err() == context.DeadlineExceeded, err
}

var (
	goTestPass = regexp.MustCompile(`(?m)^(=== RUN|--- PASS|ok\s)`)
	goTestFail = regexp.MustCompile(`(?m)^(--- FAIL|FAIL\s)`)
)

// runTests runs the configured test command and summarizes pass/fail counts
// and duration. Counts are parsed from go-test-style output where possible;
// for opaque runners the exit status alone decides a 1/0 summary.
func runTests(ctx context.Context, dir, command string, timeout time.Duration) (*types.TestReport, bool, error) {
	start := time.Now()
	output, timedOut, err := runCommand(ctx, dir, command, timeout)

	report := &types.TestReport{
		Duration: time.Since(start),
		Output:   tail(output, 4000),
	}
	report.Passed = countMatches(goTestPass, output, "--- PASS")
	report.Failed = countMatches(goTestFail, output, "--- FAIL")

	if err != nil {
		if report.Failed == 0 {
			report.Failed = 1
		}
		return report, timedOut, err
	}
	if report.Passed == 0 {
		report.Passed = 1
	}
	return report, false, nil
}

// runLint runs the configured lint command. Lint issues are advisory by
// default; the executor only treats them as blocking when configured so.
func runLint(ctx context.Context, dir, command string, timeout time.Duration) (*types.LintReport, bool) {
	output, timedOut, err := runCommand(ctx, dir, command, timeout)

	report := &types.LintReport{OK: err == nil}
	if err != nil {
		for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				report.Issues = append(report.Issues, line)
			}
			if len(report.Issues) >= 50 {
				break
			}
		}
		if len(report.Issues) == 0 {
			report.Issues = []string{err.Error()}
		}
	}
	return report, timedOut
}

// countMatches counts occurrences of marker when present, falling back to
// whole-pattern matches.
func countMatches(re *regexp.Regexp, output, marker string) int {
	if n := strings.Count(output, marker); n > 0 {
		return n
	}
	if re.MatchString(output) {
		return 1
	}
	return 0
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
