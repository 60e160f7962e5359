package mysqldump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	DefaultBinary       = "mysqldump"
	DefaultClientBinary = "mysql"
)

// Options describes one dump (or restore) of a single database.
type Options struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	OutputPath string
}

// Runner invokes the MySQL command line tools.
type Runner struct {
	binary       string
	clientBinary string
	dryRun       bool
	logger       *slog.Logger
}

func New(binary, clientBinary string, dryRun bool, logger *slog.Logger) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	if clientBinary == "" {
		clientBinary = DefaultClientBinary
	}

	return &Runner{
		binary:       binary,
		clientBinary: clientBinary,
		dryRun:       dryRun,
		logger:       logger,
	}
}

func (r *Runner) DryRun() bool {
	return r.dryRun
}

// Args returns the mysqldump arguments for opts. An empty password adds no
// password flag at all: a bare --password makes mysqldump prompt for one.
func Args(opts Options) []string {
	args := []string{
		"--host", opts.Host,
		"--port", strconv.Itoa(opts.Port),
		"--user", opts.User,
		"--databases", opts.Database,
		"--result-file", opts.OutputPath,
	}
	if opts.Password != "" {
		args = append(args, "--password="+opts.Password)
	}
	return args
}

func clientArgs(opts Options) []string {
	args := []string{
		"--host", opts.Host,
		"--port", strconv.Itoa(opts.Port),
		"--user", opts.User,
	}
	if opts.Password != "" {
		args = append(args, "--password="+opts.Password)
	}
	return args
}

// Dump runs mysqldump for opts.Database into opts.OutputPath. A non-zero exit
// status is returned as a *DumpError. In dry-run mode nothing is executed.
func (r *Runner) Dump(ctx context.Context, opts Options) error {
	args := Args(opts)
	r.logger.Debug("executing", "cmd", commandLine(r.binary, args))

	if r.dryRun {
		r.logger.Info("dry run, dump skipped", "database", opts.Database, "output", opts.OutputPath)
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	return r.run(cmd, opts.Database, &stdout, &stderr)
}

// Restore feeds the dump at path into the mysql client.
func (r *Runner) Restore(ctx context.Context, opts Options, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("dump file %q not found: %w", path, err)
	}

	args := clientArgs(opts)
	r.logger.Debug("executing", "cmd", commandLine(r.clientBinary, args)+" < "+path)

	if r.dryRun {
		r.logger.Info("dry run, restore skipped", "input", path)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.clientBinary, args...)
	cmd.Stdin = f
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	return r.run(cmd, opts.Database, &stdout, &stderr)
}

// RestoreCommand is the shell line a user runs to load the dump at path.
func (r *Runner) RestoreCommand(user, path string) string {
	return fmt.Sprintf("%s -u %s < %s", r.clientBinary, user, path)
}

func (r *Runner) run(cmd *exec.Cmd, database string, stdout, stderr *bytes.Buffer) error {
	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		r.logger.Info(out, "tool", cmd.Path, "database", database)
	}
	errText := strings.TrimSpace(stderr.String())
	if errText != "" {
		r.logger.Error("command returned", "tool", cmd.Path, "database", database, "exit_code", exitCode, "stderr", errText)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &DumpError{Database: database, ExitCode: exitCode, Stderr: errText, Err: err}
	}
	return nil
}

// commandLine renders a command for the logs with the password masked.
func commandLine(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, binary)
	for _, a := range args {
		if strings.HasPrefix(a, "--password=") {
			a = "--password=***"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
