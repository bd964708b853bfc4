// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package lineio

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesBothStreams(t *testing.T) {
	stdout := strings.NewReader("one\ntwo\n")
	stderr := strings.NewReader("err1\n")
	killed := false
	result, err := Run(stdout, stderr, func() error { killed = true; return nil }, Options{Capture: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if killed {
		t.Fatal("kill should not have been called")
	}
	if got := strings.Join(result.Stdout, ","); got != "one,two" {
		t.Fatalf("Stdout = %q", got)
	}
	if got := strings.Join(result.Stderr, ","); got != "err1" {
		t.Fatalf("Stderr = %q", got)
	}
}

func pipePair(t *testing.T) (*io.PipeReader, *io.PipeWriter) {
	t.Helper()
	pr, pw := io.Pipe()
	return pr, pw
}

func TestRunLineTransformerRemovesLine(t *testing.T) {
	stdout := strings.NewReader("keep\nremove\nkeep2\n")
	stderr := strings.NewReader("")
	result, err := Run(stdout, stderr, func() error { return nil }, Options{
		Capture: true,
		Transform: func(line Line, a *Actions) {
			if line.Text == "remove" {
				a.RemoveLine()
			}
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.Join(result.Stdout, ","); got != "keep,keep2" {
		t.Fatalf("Stdout = %q, want keep,keep2", got)
	}
}

func TestRunLineTransformerReplacesLine(t *testing.T) {
	stdout := strings.NewReader("a\n")
	stderr := strings.NewReader("")
	result, err := Run(stdout, stderr, func() error { return nil }, Options{
		Capture: true,
		Transform: func(line Line, a *Actions) {
			a.ReplaceWithLines([]string{"x", "y"})
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := strings.Join(result.Stdout, ","); got != "x,y" {
		t.Fatalf("Stdout = %q, want x,y", got)
	}
}

func TestRunIdleTimeout(t *testing.T) {
	pr, pw := pipePair(t)
	defer pw.Close()
	go func() {
		pw.Write([]byte("hello\n"))
	}()
	killed := make(chan struct{})
	_, err := Run(pr, strings.NewReader(""), func() error {
		close(killed)
		pr.Close()
		return nil
	}, Options{Idle: 30 * time.Millisecond})
	if err == nil {
		t.Fatal("expected idle timeout error")
	}
	te, ok := err.(*TimeoutError)
	if !ok || te.Kind != IdleTimeout {
		t.Fatalf("error = %v, want IdleTimeout", err)
	}
	select {
	case <-killed:
	default:
		t.Fatal("kill was not invoked")
	}
}

func TestRunWallClockTimeout(t *testing.T) {
	pr, pw := pipePair(t)
	defer pw.Close()
	killedCh := make(chan struct{})
	_, err := Run(pr, strings.NewReader(""), func() error {
		close(killedCh)
		pr.Close()
		return nil
	}, Options{Wall: 20 * time.Millisecond})
	if err == nil {
		t.Fatal("expected wall clock timeout error")
	}
	te, ok := err.(*TimeoutError)
	if !ok || te.Kind != WallClockTimeout {
		t.Fatalf("error = %v, want WallClockTimeout", err)
	}
}
