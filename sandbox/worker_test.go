//go:build unix

package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// workerTestPolicy admits the test scripts with no resource limits, so
// the wall-clock deadline is the only bound under test.
func workerTestPolicy() Policy {
	p := DefaultPolicy()
	p.AllowedImports = append(p.AllowedImports, "os", "sys")
	p.Limits = ResourceLimits{}
	return p
}

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

func TestExecutor_WorkerInfiniteLoopTimesOut(t *testing.T) {
	requirePython3(t)
	e, err := NewExecutor(Config{Policy: workerTestPolicy()})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	tool := scriptDescriptor("spinner", "python", "python3",
		"import os\nprint('started', os.getpid(), flush=True)\nwhile True:\n    pass\n")

	start := time.Now()
	res, err := e.Execute(context.Background(), Request{Tool: tool, Timeout: time.Second})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Fault != FaultTimeout {
		t.Fatalf("Fault = %q, want %q (stderr %q)", res.Fault, FaultTimeout, res.Stderr)
	}
	if elapsed > time.Second+e.cfg.GracePeriod {
		t.Errorf("termination took %v, want under timeout plus grace", elapsed)
	}
	if !strings.Contains(res.Stdout, "started") {
		t.Errorf("Stdout = %q, want partial output captured before the deadline", res.Stdout)
	}

	// The worker must not outlive the call.
	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) < 2 {
		t.Fatalf("Stdout = %q, want pid after the start marker", res.Stdout)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		t.Fatalf("worker pid %q: %v", fields[1], err)
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Errorf("worker %d still running after timeout (signal 0: %v)", pid, err)
	}
}

func TestExecutor_WorkerOutExtraction(t *testing.T) {
	requirePython3(t)
	e, err := NewExecutor(Config{Policy: workerTestPolicy()})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	tool := scriptDescriptor("emitter", "python", "python3",
		"import json\nprint('working', flush=True)\nprint(json.dumps({'__out': {'n': 7}}), flush=True)\n")

	res, err := e.Execute(context.Background(), Request{Tool: tool, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q (stderr %q)", res.Error, res.Stderr)
	}
	m, ok := res.Output.(map[string]any)
	if !ok || m["n"] != float64(7) {
		t.Errorf("Output = %#v, want map with n=7", res.Output)
	}
	if strings.Contains(res.Stdout, "__out") {
		t.Errorf("Stdout = %q, structured result line must be lifted out", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "working") {
		t.Errorf("Stdout = %q, plain output must survive extraction", res.Stdout)
	}
}

func TestExecutor_WorkerStderrTypesSyntaxFault(t *testing.T) {
	requirePython3(t)
	e, err := NewExecutor(Config{Policy: workerTestPolicy()})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	// Passes the token-level pre-check; the interpreter itself rejects it.
	tool := scriptDescriptor("broken", "python", "python3", "def f(:\n")

	res, err := e.Execute(context.Background(), Request{Tool: tool, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Fault != FaultSyntax {
		t.Errorf("Fault = %q, want %q (stderr %q)", res.Fault, FaultSyntax, res.Stderr)
	}
	if !strings.Contains(res.Stderr, "SyntaxError") {
		t.Errorf("Stderr = %q, want interpreter diagnostic", res.Stderr)
	}
}
