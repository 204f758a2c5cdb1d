// Package datarecording stores flat records in a SQLite database. It backs
// the trace of submitted requests.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry. The fields must be of basic types.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry of the type the table was created with.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created so far.
	ListTables() []string

	// Flush writes the buffered entries to the database.
	Flush()

	// Close flushes and closes the database.
	Close() error
}

// Entries are written once this many are buffered.
const flushThreshold = 100000

// New creates a recorder that writes to path.sqlite3. An empty path picks a
// unique name. The recorder is flushed when the program exits through
// atexit.Exit.
func New(path string) DataRecorder {
	if path == "" {
		path = "cescrub_trace_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		log.Panicf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		log.WithError(err).Panic("cannot open the trace database")
	}

	log.WithField("file", filename).Info("recording into database")

	return NewWithDB(db)
}

// NewWithDB creates a recorder that writes to an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &sqliteRecorder{
		db:     db,
		tables: make(map[string]*table),
	}

	atexit.Register(r.Flush)

	return r
}

type table struct {
	name    string
	rowType reflect.Type
	columns []string
	pending []reflect.Value
}

func (t *table) insertQuery() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name,
		strings.Join(t.columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", "))
}

type sqliteRecorder struct {
	mu      sync.Mutex
	db      *sql.DB
	tables  map[string]*table
	pending int
	closed  bool
}

// sqlType maps a field kind to the SQLite column affinity.
func sqlType(k reflect.Kind) (string, bool) {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	}

	return "", false
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	rowType := reflect.TypeOf(sampleEntry)
	if rowType.Kind() != reflect.Struct {
		log.Panicf("entry of type %s is not a struct", rowType)
	}

	t := &table{name: tableName, rowType: rowType}
	defs := make([]string, 0, rowType.NumField())

	for _, f := range reflect.VisibleFields(rowType) {
		typ, ok := sqlType(f.Type.Kind())
		if !ok {
			log.Panicf("field %s of %s has unsupported type %s",
				f.Name, rowType, f.Type)
		}

		t.columns = append(t.columns, f.Name)
		defs = append(defs, f.Name+" "+typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[tableName]; exists {
		log.Panicf("table %s already exists", tableName)
	}

	r.exec(fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", ")))
	r.tables[tableName] = t
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tables[tableName]
	if !exists {
		log.Panicf("table %s does not exist", tableName)
	}

	v := reflect.ValueOf(entry)
	if v.Type() != t.rowType {
		log.Panicf("entry of type %s does not fit table %s", v.Type(), tableName)
	}

	t.pending = append(t.pending, v)

	r.pending++
	if r.pending >= flushThreshold {
		r.flush()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (r *sqliteRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flush()
}

// flush writes every pending row in one transaction.
func (r *sqliteRecorder) flush() {
	if r.pending == 0 || r.closed {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		log.WithError(err).Panic("cannot begin a transaction")
	}

	for _, t := range r.tables {
		if len(t.pending) == 0 {
			continue
		}

		stmt, err := tx.Prepare(t.insertQuery())
		if err != nil {
			log.WithError(err).Panicf("cannot prepare insert into %s", t.name)
		}

		args := make([]any, len(t.columns))
		for _, row := range t.pending {
			for i := range args {
				args[i] = row.Field(i).Interface()
			}

			if _, err := stmt.Exec(args...); err != nil {
				log.WithError(err).Panicf("cannot insert into %s", t.name)
			}
		}

		stmt.Close()
		t.pending = t.pending[:0]
	}

	if err := tx.Commit(); err != nil {
		log.WithError(err).Panic("cannot commit the trace")
	}

	r.pending = 0
}

func (r *sqliteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flush()
	r.closed = true

	return r.db.Close()
}

func (r *sqliteRecorder) exec(query string) {
	if _, err := r.db.Exec(query); err != nil {
		log.WithError(err).Panicf("failed to execute %q", query)
	}
}
