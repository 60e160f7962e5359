package meos

// ConnectionError means the catalog could not be reached or refused the
// credentials. No session exists when it is returned.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return "connect to meos database " + e.Addr + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError means a catalog query failed after the session was opened.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return "query meos database: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
