package mysqldump

import "fmt"

// DumpError reports a failed mysqldump (or mysql) invocation. ExitCode is -1
// when the process could not be started.
type DumpError struct {
	Database string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *DumpError) Error() string {
	msg := fmt.Sprintf("dump of %s failed (exit code %d)", e.Database, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DumpError) Unwrap() error {
	return e.Err
}
