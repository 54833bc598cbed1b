package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/dbutil"
)

var (
	//go:embed schema/tables.sql
	tablesSQL string

	//go:embed schema/notify.sql
	notifySQL string
)

// Bootstrap creates the tables if they don't exist.  On postgres it also
// (re)installs the change notification triggers.  Safe to run repeatedly.
func Bootstrap(ctx context.Context, db *sql.DB, dialect dbutil.Dialect) error {
	for _, stmt := range strings.Split(tablesSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	if dialect.Notifies() {
		// Dollar-quoted function body, so this goes over in one piece.
		if _, err := db.ExecContext(ctx, notifySQL); err != nil {
			return fmt.Errorf("bootstrap notify triggers: %w", err)
		}
	}
	zerolog.Ctx(ctx).Info().Str("dialect", string(dialect)).Msg("schema ready")
	return nil
}
