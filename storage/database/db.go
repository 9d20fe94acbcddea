package database

import (
	"database/sql"
	"embed"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/trezcool/shule/core"
)

// MigrationsDir is the directory of Migrations holding the goose files.
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS

const (
	pingAttempts = 30
	pingBackoff  = 100 * time.Millisecond
)

// dsn builds the connection URL for dbName, as the admin role when asked
// and one is configured.
func dsn(dbName string, admin bool, conf *core.Config) string {
	dbc := conf.Database
	user := url.UserPassword(dbc.User, dbc.Password)
	if admin && dbc.AdminUser != "" {
		user = url.UserPassword(dbc.AdminUser, dbc.AdminPassword)
	}

	q := url.Values{}
	q.Set("timezone", "utc")
	if dbc.DisableTLS {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "require")
	}

	u := url.URL{
		Scheme:   dbc.Engine,
		User:     user,
		Host:     dbc.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(dbName, admin, conf))
}

// Open connects to the application database as the application role.
func Open(conf *core.Config) (*sql.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// Ping waits for the database to be ready, backing off a little longer after
// each failed attempt.
func Ping(db *sql.DB) error {
	var err error
	for i := 1; i <= pingAttempts; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(i) * pingBackoff)
	}
	return errors.Wrap(err, "DB ping timeout")
}

func createRoleStmt(name, password string) string {
	return "CREATE USER " + pq.QuoteIdentifier(name) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(password)
}

func createDBStmt(name string) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(name)
}

func exists(db *sql.DB, query, arg string) (bool, error) {
	var found bool
	err := db.QueryRow("SELECT EXISTS ("+query+")", arg).Scan(&found)
	return found, err
}

func ensureRole(db *sql.DB, dbc core.DatabaseConfig) error {
	if dbc.User == "" {
		return nil
	}
	found, err := exists(db, "SELECT 1 FROM pg_roles WHERE rolname = $1", dbc.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if found {
		return nil
	}
	_, err = db.Exec(createRoleStmt(dbc.User, dbc.Password))
	return errors.Wrap(err, "creating app user")
}

func ensureDB(db *sql.DB, dbc core.DatabaseConfig) error {
	found, err := exists(db, "SELECT 1 FROM pg_database WHERE datname = $1", dbc.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if found {
		return nil
	}
	_, err = db.Exec(createDBStmt(dbc.Name))
	return errors.Wrap(err, "creating database")
}

// withDB runs fn on a short-lived connection to the maintenance database.
func withDB(conf *core.Config, admin bool, fn func(*sql.DB) error) error {
	db, err := open("postgres", admin, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = Ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	return fn(db)
}

// CreateIfNotExist creates the application role as admin, then the
// application database as that role.
func CreateIfNotExist(conf *core.Config) error {
	err := withDB(conf, true, func(db *sql.DB) error {
		return ensureRole(db, conf.Database)
	})
	if err != nil {
		return err
	}
	return withDB(conf, false, func(db *sql.DB) error {
		return ensureDB(db, conf.Database)
	})
}

// Migrate applies every pending goose migration.
func Migrate(db *sql.DB) error {
	return errors.Wrap(goose.RunFS("up", db, Migrations, MigrationsDir), "migrating database")
}
