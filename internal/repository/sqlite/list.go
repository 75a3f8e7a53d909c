package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/tasklists/internal/apperror"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/repository"
)

// Compile-time check that *DB implements repository.ListRepository.
var _ repository.ListRepository = (*DB)(nil)

const listColumns = `id, title, created_at, tasks, owner_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows, so one scan
// function serves single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanList(row rowScanner) (model.List, error) {
	var (
		l     model.List
		tasks string
	)
	if err := row.Scan(&l.ID, &l.Title, &l.CreatedAt, &tasks, &l.By); err != nil {
		return model.List{}, err
	}
	if err := json.Unmarshal([]byte(tasks), &l.Tasks); err != nil {
		return model.List{}, fmt.Errorf("decoding tasks of list %s: %w", l.ID, err)
	}
	if l.Tasks == nil {
		l.Tasks = []model.Task{}
	}
	return l, nil
}

// encodeTasks turns the task slice into the JSON stored in the tasks column.
// A nil slice is stored as "[]", never "null".
func encodeTasks(tasks []model.Task) (string, error) {
	if tasks == nil {
		tasks = []model.Task{}
	}
	b, err := json.Marshal(tasks)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FindAll returns every list, oldest first. There is no filter and no paging.
func (db *DB) FindAll(ctx context.Context) ([]model.List, error) {
	return db.queryLists(ctx, "listing lists",
		`SELECT `+listColumns+` FROM lists ORDER BY created_at, id`)
}

// FindByOwner returns the lists whose owner is ownerID, oldest first.
func (db *DB) FindByOwner(ctx context.Context, ownerID string) ([]model.List, error) {
	return db.queryLists(ctx, "listing lists of "+ownerID,
		`SELECT `+listColumns+` FROM lists WHERE owner_id = ? ORDER BY created_at, id`,
		ownerID)
}

func (db *DB) queryLists(ctx context.Context, op, query string, args ...any) ([]model.List, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	// Never nil: an empty result encodes as [] rather than null.
	lists := []model.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning list row: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating lists: %w", err)
	}

	return lists, nil
}

// FindByID retrieves a single list.
//
// An id that isn't a valid xid can't possibly be in the table, so it is
// reported as not found without touching the database.
func (db *DB) FindByID(ctx context.Context, id string) (*model.List, error) {
	if _, err := xid.FromString(id); err != nil {
		return nil, apperror.NotFound("list", id)
	}

	l, err := scanList(db.conn.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("list", id)
		}
		return nil, fmt.Errorf("sqlite: getting list %s: %w", id, err)
	}

	return &l, nil
}

// Create inserts a new list and fills in its ID.
//
// CreatedAt, Tasks and By are taken as given: deciding their values is the
// service's job, storing them is ours.
func (db *DB) Create(ctx context.Context, list *model.List) error {
	list.ID = xid.New().String()
	if list.Tasks == nil {
		list.Tasks = []model.Task{}
	}

	tasks, err := encodeTasks(list.Tasks)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tasks: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO lists (`+listColumns+`) VALUES (?, ?, ?, ?, ?)`,
		list.ID,
		list.Title,
		list.CreatedAt,
		tasks,
		list.By,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating list: %w", err)
	}

	return nil
}

// Save writes the mutable fields (title and tasks) of an existing list.
//
// id, created_at and owner_id are never part of the UPDATE, so they can't
// change after creation no matter what the caller did to the struct.
func (db *DB) Save(ctx context.Context, list *model.List) error {
	tasks, err := encodeTasks(list.Tasks)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tasks: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE lists SET title = ?, tasks = ? WHERE id = ?`,
		list.Title,
		tasks,
		list.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving list %s: %w", list.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("list", list.ID)
	}

	return nil
}

// Remove physically deletes the list. There is no soft delete.
func (db *DB) Remove(ctx context.Context, list *model.List) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM lists WHERE id = ?`,
		list.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing list %s: %w", list.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("list", list.ID)
	}

	return nil
}
