package mysqldump

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript installs an executable shell script standing in for a MySQL tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-mysqldump")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "without password",
			opts: Options{Host: "localhost", Port: 3306, User: "meos", Database: "meosmain", OutputPath: "/b/x.dump.sql"},
			want: []string{
				"--host", "localhost", "--port", "3306", "--user", "meos",
				"--databases", "meosmain", "--result-file", "/b/x.dump.sql",
			},
		},
		{
			name: "with password",
			opts: Options{Host: "db", Port: 3307, User: "root", Password: "pw", Database: "meos_1", OutputPath: "/b/y.dump.sql"},
			want: []string{
				"--host", "db", "--port", "3307", "--user", "root",
				"--databases", "meos_1", "--result-file", "/b/y.dump.sql",
				"--password=pw",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Args(tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArgs_EmptyPasswordHasNoFlag(t *testing.T) {
	for _, a := range Args(Options{Host: "h", Port: 1, User: "u", Database: "d", OutputPath: "o"}) {
		if strings.HasPrefix(a, "--password") {
			t.Fatalf("Args() contains %q for an empty password", a)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New("", "", false, testLogger())
	if r.binary != DefaultBinary {
		t.Errorf("binary = %v, want %v", r.binary, DefaultBinary)
	}
	if got := r.RestoreCommand("meos", "/b/x.dump.sql"); got != "mysql -u meos < /b/x.dump.sql" {
		t.Errorf("RestoreCommand() = %q", got)
	}
}

func TestRunner_Dump_DryRun(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "invoked")
	script := writeScript(t, "touch "+marker+"\n")

	r := New(script, "", true, testLogger())
	err := r.Dump(context.Background(), Options{Host: "h", Port: 1, User: "u", Database: "d", OutputPath: "o"})
	if err != nil {
		t.Fatalf("Dump() error: %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("Dump() in dry-run mode executed the tool")
	}
}

func TestRunner_Dump_Success(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, `printf '%s\n' "$@" > `+argsFile+`
echo "-- Dump completed"
`)

	r := New(script, "", false, testLogger())
	opts := Options{Host: "localhost", Port: 3306, User: "meos", Database: "meosmain", OutputPath: filepath.Join(dir, "out.sql")}
	if err := r.Dump(context.Background(), opts); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("script did not record its arguments: %v", err)
	}
	got := strings.Fields(string(data))
	if !reflect.DeepEqual(got, Args(opts)) {
		t.Errorf("tool invoked with %v, want %v", got, Args(opts))
	}
}

func TestRunner_Dump_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "mysqldump: Got error: 1049: Unknown database 'meos_x'" >&2
exit 2
`)

	r := New(script, "", false, testLogger())
	err := r.Dump(context.Background(), Options{Host: "h", Port: 1, User: "u", Database: "meos_x", OutputPath: "o"})

	var derr *DumpError
	if !errors.As(err, &derr) {
		t.Fatalf("Dump() error = %v, want *DumpError", err)
	}
	if derr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", derr.ExitCode)
	}
	if !strings.Contains(derr.Stderr, "Unknown database") {
		t.Errorf("Stderr = %q, want it to contain the tool diagnostics", derr.Stderr)
	}
	if derr.Database != "meos_x" {
		t.Errorf("Database = %v, want meos_x", derr.Database)
	}
}

func TestRunner_Dump_MissingBinary(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"), "", false, testLogger())
	err := r.Dump(context.Background(), Options{Host: "h", Port: 1, User: "u", Database: "d", OutputPath: "o"})

	var derr *DumpError
	if !errors.As(err, &derr) {
		t.Fatalf("Dump() error = %v, want *DumpError", err)
	}
	if derr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", derr.ExitCode)
	}
}

func TestRunner_Restore(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "x.dump.sql")
	if err := os.WriteFile(dump, []byte("CREATE DATABASE meos_1;\n"), 0644); err != nil {
		t.Fatalf("failed to write dump: %v", err)
	}
	received := filepath.Join(dir, "stdin.txt")
	client := writeScript(t, "cat > "+received+"\n")

	r := New("", client, false, testLogger())
	if err := r.Restore(context.Background(), Options{Host: "h", Port: 1, User: "meos"}, dump); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	data, err := os.ReadFile(received)
	if err != nil {
		t.Fatalf("client did not receive input: %v", err)
	}
	if string(data) != "CREATE DATABASE meos_1;\n" {
		t.Errorf("client received %q", data)
	}
}

func TestRunner_Restore_MissingFile(t *testing.T) {
	r := New("", "", false, testLogger())
	err := r.Restore(context.Background(), Options{}, filepath.Join(t.TempDir(), "none.sql"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Restore() error = %v, want not found", err)
	}
}

func TestCommandLine_MasksPassword(t *testing.T) {
	got := commandLine("mysqldump", Args(Options{Host: "h", Port: 1, User: "u", Password: "secret", Database: "d", OutputPath: "o"}))
	if strings.Contains(got, "secret") {
		t.Errorf("commandLine() leaks the password: %s", got)
	}
}
