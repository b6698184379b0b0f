package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// Options holds the PostgreSQL connection settings
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (o Options) sslMode() string {
	if o.SSLMode == "" {
		return "disable"
	}
	return o.SSLMode
}

// ConnectionString returns a lib/pq key/value connection string
func (o Options) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, o.Port, o.User, o.Password, o.Name, o.sslMode(),
	)
}

// URL returns the connection settings as a postgres:// URL, as needed by golang-migrate
func (o Options) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(o.User, o.Password),
		Host:     o.Host + ":" + strconv.Itoa(o.Port),
		Path:     "/" + o.Name,
		RawQuery: "sslmode=" + o.sslMode(),
	}
	return u.String()
}

// String is safe to log
func (o Options) String() string {
	return fmt.Sprintf("%s:%d/%s", o.Host, o.Port, o.Name)
}

func connection(opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.ConnectionString())
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(20)           // Allow multiple concurrent operations
	db.SetMaxIdleConns(10)           // Keep some connections ready
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	return db, nil
}
