package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type SQLStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLStore(sqlDB *sql.DB, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:     sqlDB,
		logger: logger,
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type table struct {
	name      string
	columns   []string
	selectSQL string
	insertSQL string
	updateSQL string
}

// newTable derives the statements from the column list. The first column is the id and the
// update compares the version column.
func newTable(name string, columns ...string) table {
	sets := make([]string, 0, len(columns)-1)
	for _, c := range columns[1:] {
		sets = append(sets, c+" = ?")
	}
	return table{
		name:      name,
		columns:   columns,
		selectSQL: fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), name),
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			name, strings.Join(columns, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")),
		updateSQL: fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND version = ?", name, strings.Join(sets, ", ")),
	}
}

// cas runs the table update with args for every non-id column and fails on a stale version.
func (t table) cas(ctx context.Context, ex execer, id string, version int64, args []any) error {
	args = append(args, id, version)
	res, err := ex.ExecContext(ctx, t.updateSQL, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", t.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func (s *SQLStore) Commit(ctx context.Context, b Batch) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if t := b.Tournament; t != nil {
		if err := tournamentTable.cas(ctx, tx, t.ID, t.Version, tournamentArgs(t, t.Version+1)[1:]); err != nil {
			return err
		}
	}
	for _, g := range b.NewGames {
		if _, err := tx.ExecContext(ctx, gameTable.insertSQL, gameArgs(g, g.Version)...); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return fmt.Errorf("failed to insert game %s: %w", g.ID, err)
		}
	}
	for _, g := range b.Games {
		if err := gameTable.cas(ctx, tx, g.ID, g.Version, gameArgs(g, g.Version+1)[1:]); err != nil {
			return err
		}
	}
	for _, p := range b.Participants {
		if err := participantTable.cas(ctx, tx, p.ID, p.Version, participantArgs(p, p.Version+1)[1:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if b.Tournament != nil {
		b.Tournament.Version++
	}
	for _, g := range b.Games {
		g.Version++
	}
	for _, p := range b.Participants {
		p.Version++
	}

	s.logger.Debug().
		Int("new_games", len(b.NewGames)).
		Int("games", len(b.Games)).
		Int("participants", len(b.Participants)).
		Bool("tournament", b.Tournament != nil).
		Msg("batch committed")
	return nil
}
