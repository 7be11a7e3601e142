package executor

import (
	"context"
	"testing"
	"time"
)

func TestRunCommand_Success(t *testing.T) {
	_, timedOut, err := runCommand(context.Background(), t.TempDir(), "true", 5*time.Second)
	if err != nil || timedOut {
		t.Fatalf("true failed: err=%v timedOut=%v", err, timedOut)
	}
}

func TestRunCommand_Failure(t *testing.T) {
	_, timedOut, err := runCommand(context.Background(), t.TempDir(), "false", 5*time.Second)
	if err == nil {
		t.Fatal("expected non-zero exit to error")
	}
	if timedOut {
		t.Error("failure should not be classified as timeout")
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	start := time.Now()
	_, timedOut, err := runCommand(context.Background(), t.TempDir(), "sleep 5", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout to error")
	}
	if !timedOut {
		t.Error("expected timedOut to be set")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout was not enforced promptly")
	}
}

func TestRunCommand_Empty(t *testing.T) {
	out, timedOut, err := runCommand(context.Background(), t.TempDir(), "   ", time.Second)
	if out != "" || timedOut || err != nil {
		t.Errorf("empty command should be a no-op, got out=%q timedOut=%v err=%v", out, timedOut, err)
	}
}

func TestRunTests_PassingCommand(t *testing.T) {
	report, timedOut, err := runTests(context.Background(), t.TempDir(), "true", 5*time.Second)
	if err != nil || timedOut {
		t.Fatalf("err=%v timedOut=%v", err, timedOut)
	}
	if report.Passed < 1 || report.Failed != 0 {
		t.Errorf("report = %+v, expected at least one pass and no failures", report)
	}
}

func TestRunTests_FailingCommand(t *testing.T) {
	report, timedOut, err := runTests(context.Background(), t.TempDir(), "false", 5*time.Second)
	if err == nil {
		t.Fatal("expected failing command to error")
	}
	if timedOut {
		t.Error("failure should not be classified as timeout")
	}
	if report.Failed < 1 {
		t.Errorf("report = %+v, expected at least one failure", report)
	}
}

func TestRunLint_AdvisoryIssues(t *testing.T) {
	report, timedOut := runLint(context.Background(), t.TempDir(), "false", 5*time.Second)
	if timedOut {
		t.Error("failure should not be classified as timeout")
	}
	if report.OK {
		t.Error("expected OK=false for failing linter")
	}
	if len(report.Issues) == 0 {
		t.Error("expected at least one recorded issue")
	}
}

func TestRunLint_Clean(t *testing.T) {
	report, timedOut := runLint(context.Background(), t.TempDir(), "true", 5*time.Second)
	if timedOut || !report.OK || len(report.Issues) != 0 {
		t.Errorf("report = %+v timedOut=%v, expected clean", report, timedOut)
	}
}

func TestCountMatches(t *testing.T) {
	output := "--- PASS: TestA\n--- PASS: TestB\n--- FAIL: TestC\nFAIL\n"

	if got := countMatches(goTestPass, output, "--- PASS"); got != 2 {
		t.Errorf("pass count = %d, expected 2", got)
	}
	if got := countMatches(goTestFail, output, "--- FAIL"); got != 1 {
		t.Errorf("fail count = %d, expected 1", got)
	}
	if got := countMatches(goTestPass, "no test markers here", "--- PASS"); got != 0 {
		t.Errorf("count = %d, expected 0", got)
	}
}

func TestTail(t *testing.T) {
	if got := tail("abcdef", 3); got != "def" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("ab", 3); got != "ab" {
		t.Errorf("tail = %q", got)
	}
}
