package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/failure"
	"sdburn/internal/platform"
)

func TestPrintError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "categorized",
			err:  failure.New(failure.NoDisksError, errors.New("nothing plugged in"), ""),
			want: []string{"SD card not found..", "Make sure you have inserted the SD card correctly", "nothing plugged in"},
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			want: []string{"Cancelled."},
		},
		{
			name: "plain",
			err:  errors.New("bad flag"),
			want: []string{"Error: bad flag"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printError(&buf, tt.err)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestProgressPrinterOverwritesLine(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.report(0, "preparing to burn OS image..")
	p.report(42, "10 MB/s, about 1 minute left")
	p.done()
	p.done()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\r"))
	assert.Equal(t, 1, strings.Count(out, "\n"))
	last := out[strings.LastIndex(out, "\r")+1:]
	assert.Equal(t, "[ 42%] 10 MB/s, about 1 minute left", strings.TrimRight(last, " \n"))
	assert.Len(t, strings.TrimRight(last, "\n"), len("[  0%] preparing to burn OS image.."))
}

func TestConfirm(t *testing.T) {
	disk := platform.Disk{ID: "/dev/sdb", Name: "card", SizeBytes: 8 << 30}
	for input, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
	} {
		var out bytes.Buffer
		ok, err := confirm(strings.NewReader(input), &out, disk)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "input %q", input)
		assert.Contains(t, out.String(), "/dev/sdb")
	}
}

func TestCleanAndLastError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	work := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(work, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "images", "os.img.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(work, "last-failure.log"), []byte("category: BURN_ERROR\n"), 0o644))

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append(args, "--work-dir", work, "--log-level", "error"))
		require.NoError(t, rootCmd.ExecuteContext(context.Background()))
		return out.String()
	}

	assert.Contains(t, run("last-error"), "BURN_ERROR")

	assert.Contains(t, run("clean"), work)
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Contains(t, run("last-error"), "No failure recorded.")
}
