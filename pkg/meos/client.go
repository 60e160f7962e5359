package meos

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/localrivet/meosbackup/pkg/naming"
)

// MaxActiveEvents caps the number of rows returned by ListActiveEvents.
// Events beyond the cap are dropped; callers get a warning in the logs.
const MaxActiveEvents = 1000

const activeEventsQuery = "SELECT name, annotation, nameid FROM oevent WHERE `Date` > ? LIMIT ?"

// Endpoint identifies the MeOS MySQL server and the account used for it.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// DSN returns a go-sql-driver/mysql data source name for the main database.
func (e Endpoint) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = e.User
	cfg.Passwd = e.Password
	cfg.Net = "tcp"
	cfg.Addr = e.Addr()
	cfg.DBName = naming.MainDatabase
	return cfg.FormatDSN()
}

// Event is one row of the MeOS event list.
type Event struct {
	Name       string
	Annotation string
	// NameID is the physical database holding the event.
	NameID string
}

// Client is a session against the meosmain schema.
type Client struct {
	endpoint Endpoint
	db       *sql.DB
	now      func() time.Time
}

// Connect opens and pings a session against meosmain. No retry is attempted.
func Connect(ctx context.Context, endpoint Endpoint) (*Client, error) {
	db, err := sql.Open("mysql", endpoint.DSN())
	if err != nil {
		return nil, &ConnectionError{Addr: endpoint.Addr(), Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Addr: endpoint.Addr(), Err: err}
	}

	return NewClient(db, endpoint), nil
}

// NewClient wraps an already opened handle.
func NewClient(db *sql.DB, endpoint Endpoint) *Client {
	return &Client{
		endpoint: endpoint,
		db:       db,
		now:      time.Now,
	}
}

func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Close releases the session. Calling it again is a no-op.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// ListActiveEvents returns the events dated strictly after today minus
// recencyDays, in the server's natural row order, capped at MaxActiveEvents.
func (c *Client) ListActiveEvents(ctx context.Context, recencyDays int) ([]Event, error) {
	if c.db == nil {
		return nil, &QueryError{Query: activeEventsQuery, Err: fmt.Errorf("database not connected")}
	}

	cutoff := Cutoff(c.now(), recencyDays)

	rows, err := c.db.QueryContext(ctx, activeEventsQuery, cutoff, MaxActiveEvents)
	if err != nil {
		return nil, &QueryError{Query: activeEventsQuery, Err: err}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			name, nameID sql.NullString
			annotation   sql.NullString
		)
		if err := rows.Scan(&name, &annotation, &nameID); err != nil {
			return nil, &QueryError{Query: activeEventsQuery, Err: err}
		}
		events = append(events, Event{
			Name:       name.String,
			Annotation: annotation.String,
			NameID:     nameID.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: activeEventsQuery, Err: err}
	}

	return events, nil
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.db == nil {
		return "", fmt.Errorf("database not connected")
	}

	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	return version, nil
}

// Cutoff returns the lower date bound (exclusive) for active events.
func Cutoff(now time.Time, recencyDays int) string {
	return now.AddDate(0, 0, -recencyDays).Format("2006-01-02")
}
