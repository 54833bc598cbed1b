package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/ts4z/trz/config"
)

type cloudEnvSettings struct {
	dbUser,
	dbPwd,
	dbName,
	instanceConnectionName,
	usePrivate string
}

func (s *cloudEnvSettings) getenv() error {
	unset := []string{}
	getenv := func(k string) string {
		v := os.Getenv(k)
		if v == "" {
			unset = append(unset, k)
		}
		return v
	}

	s.dbUser = getenv("DB_USER")
	s.dbPwd = getenv("DB_PASS")
	s.dbName = getenv("DB_NAME")
	s.instanceConnectionName = getenv("INSTANCE_CONNECTION_NAME") // project:region:instance
	s.usePrivate = os.Getenv("PRIVATE_IP")

	if len(unset) > 0 {
		return fmt.Errorf("cloudsqlconn: unset variables: %+v", unset)
	}
	return nil
}

func connectWithConnector(ctx context.Context) (*sql.DB, error) {
	env := &cloudEnvSettings{}
	if err := env.getenv(); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", env.dbUser, env.dbPwd, env.dbName)
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if env.usePrivate != "" {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	// Refresh on demand; background refreshes get throttled on serverless.
	opts = append(opts, cloudsqlconn.WithLazyRefresh())
	d, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, err
	}
	cfg.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, env.instanceConnectionName)
	}
	dbURI := stdlib.RegisterConnConfig(cfg)
	db, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return db, nil
}

func connectWithPgx(ctx context.Context) (*sql.DB, error) {
	url := config.DBURL()
	if url == "" {
		return nil, errors.New("database URL is empty")
	}
	log.Info().Msg("connecting to postgres")
	return sql.Open("pgx", url)
}

func connectWithSQLite(ctx context.Context) (*sql.DB, error) {
	path := config.SQLitePath()
	log.Info().Str("path", path).Msg("opening sqlite database")
	return OpenSQLite(path)
}

// OpenSQLite opens (creating if needed) a sqlite database file.  Use
// ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// One writer at a time; also keeps :memory: to a single database.
	db.SetMaxOpenConns(1)
	return db, nil
}

type connector struct {
	dialect Dialect
	connect func(context.Context) (*sql.DB, error)
}

var connectors = map[string]connector{
	"connector": {Postgres, connectWithConnector},
	"pgx":       {Postgres, connectWithPgx},
	"sqlite":    {SQLite, connectWithSQLite},
}

// Connect opens the database selected by config.SQLConnector().
func Connect(ctx context.Context) (*sql.DB, Dialect, error) {
	name := config.SQLConnector()
	c, ok := connectors[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown sql_connector %q", name)
	}
	db, err := c.connect(ctx)
	if err != nil {
		return nil, "", err
	}
	return db, c.dialect, nil
}
