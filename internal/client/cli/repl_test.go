package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/qrpass/internal/qr"
)

type fakeExec struct {
	calls []string
}

func (f *fakeExec) Scan(_ context.Context, payload string) error {
	f.calls = append(f.calls, "scan:"+payload)
	return nil
}

func (f *fakeExec) Sync(context.Context) error {
	f.calls = append(f.calls, "sync")
	return errors.New("ignored")
}

func (f *fakeExec) Refresh(context.Context) error {
	f.calls = append(f.calls, "refresh")
	return nil
}

func (f *fakeExec) Status(context.Context) error {
	f.calls = append(f.calls, "status")
	return nil
}

func capturePrint(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_Commands(t *testing.T) {
	out := capturePrint(t)

	payload, err := qr.Encode("STU0007", []byte("k"), scanNow)
	assert.NoError(t, err)

	input := strings.Join([]string{
		"help",
		"",
		"scan abc",
		"scan",
		payload,
		"sync",
		"refresh",
		"pending",
		"status",
		"foobar",
		"exit",
		"sync",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(offline)" }, bufio.NewScanner(strings.NewReader(input)))

	assert.Equal(t, []string{"scan:abc", "scan:" + payload, "sync", "refresh", "status", "status"}, exec.calls)
	assert.Contains(t, *out, "Usage: scan <payload>")
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Contains(t, *out, "Bye!")
	assert.Contains(t, *out, "qrpass (offline)> ")
}

func TestRunREPL_EOFAndCancel(t *testing.T) {
	capturePrint(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("sync")))
	assert.Equal(t, []string{"sync"}, exec.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec = &fakeExec{}
	runREPL(ctx, exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("sync\n")))
	assert.Empty(t, exec.calls)
}
