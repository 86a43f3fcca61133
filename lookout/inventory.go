// Inventory supports only SQLite3
package lookout

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"
)

//go:embed schema.sql
var schema string

// Child tables first, so drops never trip foreign keys
var tables = []string{
	"internal_request_execution",
	"request_execution",
	"test_execution",
	"request",
	"test_case",
}

var (
	testCaseFields                 = "test_case_id,lookout_id,app_id,created,version"
	requestFields                  = "request_id,event_id,lookout_id,lookout_description,url,date_millis,date_time,body,http_method,headers,type,expected_http_status,expected_response,app_id,test_case_id"
	testExecutionFields            = "execution_id,test_case_id,status,result"
	requestExecutionFields         = "request_execution_id,lookout_description,url,body,http_method,headers,type,http_status,response,execution_id,request_id"
	internalRequestExecutionFields = "test_case_id,execution_id,request_id,description,status"
)

// execer is implemented by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Record is anything a Session can persist
type Record interface {
	insert(ctx context.Context, tx execer) error
}

type Inventory struct {
	db *sql.DB
}

// NewInventory creates and initiate new Inventory object with ready to use db handler.
// If file does not exists it will create schema.
func NewInventory(dbFile string) (*Inventory, error) {
	var createSchema bool

	_, err := os.Stat(dbFile)
	if os.IsNotExist(err) {
		createSchema = true
	}

	db, err := sql.Open("sqlite3", dbFile+"?_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	// foreign_keys pragma is per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Could not enable foreign keys: %w", err)
	}

	if createSchema {
		_, err = db.Exec(schema)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("Could not create inventory schema: %w", err)
		}
	}

	return &Inventory{
		db: db,
	}, nil
}

func (i *Inventory) Close() error {
	return i.db.Close()
}

// Reset drops all tables and creates them again
func (i *Inventory) Reset(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "start transaction", Err: err}
	}

	for _, table := range tables {
		_, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
		if err != nil {
			tx.Rollback()
			return &PersistenceError{Op: "drop table " + table, Err: err}
		}
	}

	_, err = tx.ExecContext(ctx, schema)
	if err != nil {
		tx.Rollback()
		return &PersistenceError{Op: "create schema", Err: err}
	}

	err = tx.Commit()
	if err != nil {
		return &PersistenceError{Op: "commit schema", Err: err}
	}

	return nil
}

// Session collects records and writes them in one transaction on Commit.
// Foreign keys are checked at commit, so the order of Add calls does not matter.
type Session struct {
	inv     *Inventory
	pending []Record
}

func (i *Inventory) NewSession() *Session {
	return &Session{inv: i}
}

func (s *Session) Add(records ...Record) {
	s.pending = append(s.pending, records...)
}

// Pending returns number of records waiting for Commit
func (s *Session) Pending() int {
	return len(s.pending)
}

// Commit inserts all pending records. On failure nothing is written,
// pending records are kept and the error is a *PersistenceError.
func (s *Session) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.inv.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "start transaction", Err: err}
	}

	for _, record := range s.pending {
		err = record.insert(ctx, tx)
		if err != nil {
			tx.Rollback()
			return &PersistenceError{Op: fmt.Sprintf("insert %T", record), Err: err}
		}
	}

	err = tx.Commit()
	if err != nil {
		// A deferred foreign key failure leaves the transaction open on the connection
		if IsConstraintViolation(err) {
			if _, rerr := s.inv.db.ExecContext(context.Background(), "ROLLBACK"); rerr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rerr)
			}
		}
		return &PersistenceError{Op: "commit", Err: err}
	}

	s.pending = nil
	return nil
}

// Save persists records in a single session
func (i *Inventory) Save(ctx context.Context, records ...Record) error {
	s := i.NewSession()
	s.Add(records...)

	return s.Commit(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}

	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, s.String)
}

// scanStatus applies the column default to NULL status
func scanStatus(s sql.NullString) (ExecutionStatus, error) {
	if !s.Valid {
		return StatusInitiated, nil
	}

	return ParseExecutionStatus(s.String)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Close()
	if err != nil {
		return err
	}

	return rows.Err()
}

func (tc *TestCase) insert(ctx context.Context, tx execer) error {
	query := fmt.Sprintf("INSERT INTO test_case(%s) VALUES(?,?,?,?,?)", testCaseFields)
	_, err := tx.ExecContext(ctx, query, tc.ID, tc.LookoutID, tc.AppID, nullTime(tc.Created), nullString(tc.Version))

	return err
}

func (r *Request) insert(ctx context.Context, tx execer) error {
	if r.DateTime.IsZero() {
		r.DateTime = time.Now().UTC()
	}

	query := fmt.Sprintf("INSERT INTO request(%s) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)", requestFields)
	_, err := tx.ExecContext(ctx, query,
		r.ID,
		r.EventID,
		r.LookoutID,
		r.LookoutDescription,
		r.URL,
		r.DateMillis,
		r.DateTime.UTC().Format(time.RFC3339Nano),
		r.Body,
		r.HTTPMethod,
		r.Headers,
		r.Type,
		r.ExpectedHTTPStatus,
		r.ExpectedResponse,
		r.AppID,
		r.TestCaseID,
	)

	return err
}

func (e *TestExecution) insert(ctx context.Context, tx execer) error {
	if e.Status == "" {
		e.Status = StatusInitiated
	}

	query := fmt.Sprintf("INSERT INTO test_execution(%s) VALUES(?,?,?,?)", testExecutionFields)
	_, err := tx.ExecContext(ctx, query, e.ID, e.TestCaseID, e.Status.String(), e.Result)

	return err
}

func (re *RequestExecution) insert(ctx context.Context, tx execer) error {
	query := fmt.Sprintf("INSERT INTO request_execution(%s) VALUES(?,?,?,?,?,?,?,?,?,?,?)", requestExecutionFields)
	_, err := tx.ExecContext(ctx, query,
		re.ID,
		re.LookoutDescription,
		re.URL,
		re.Body,
		re.HTTPMethod,
		re.Headers,
		re.Type,
		nullInt(re.HTTPStatus),
		re.Response,
		re.ExecutionID,
		re.RequestID,
	)

	return err
}

func (ire *InternalRequestExecution) insert(ctx context.Context, tx execer) error {
	if ire.Status == "" {
		ire.Status = StatusInitiated
	}

	query := fmt.Sprintf("INSERT INTO internal_request_execution(%s) VALUES(?,?,?,?,?)", internalRequestExecutionFields)
	_, err := tx.ExecContext(ctx, query, ire.TestCaseID, ire.ExecutionID, ire.RequestID, nullString(ire.Description), ire.Status.String())

	return err
}

// FindTestCase returns nil when there is no test case with given id
func (i *Inventory) FindTestCase(ctx context.Context, id string) (*TestCase, error) {
	query := fmt.Sprintf("SELECT %s FROM test_case WHERE test_case_id = ?", testCaseFields)
	tcs, err := i.queryTestCases(ctx, query, id)
	if err != nil {
		return nil, err
	}

	if len(tcs) != 1 {
		return nil, nil
	}

	return tcs[0], nil
}

// Find and return all test cases
func (i *Inventory) FindAllTestCases(ctx context.Context) ([]*TestCase, error) {
	query := fmt.Sprintf("SELECT %s FROM test_case ORDER BY test_case_id", testCaseFields)
	return i.queryTestCases(ctx, query)
}

func (i *Inventory) FindTestCasesByApp(ctx context.Context, appID string) ([]*TestCase, error) {
	query := fmt.Sprintf("SELECT %s FROM test_case WHERE app_id = ? ORDER BY test_case_id", testCaseFields)
	return i.queryTestCases(ctx, query, appID)
}

func (i *Inventory) queryTestCases(ctx context.Context, query string, args ...interface{}) ([]*TestCase, error) {
	results := make([]*TestCase, 0)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var created, version sql.NullString
		tc := &TestCase{}

		err = rows.Scan(&tc.ID, &tc.LookoutID, &tc.AppID, &created, &version)
		if err != nil {
			return nil, err
		}

		tc.Created, err = parseTime(created)
		if err != nil {
			return nil, fmt.Errorf("Can't parse created time of test case %s: %w", tc.ID, err)
		}

		tc.Version = version.String
		results = append(results, tc)
	}

	err = closeRows(rows)
	return results, err
}

// FindRequestsForTestCase returns requests ordered by date_millis and id
func (i *Inventory) FindRequestsForTestCase(ctx context.Context, testCaseID string) ([]*Request, error) {
	query := fmt.Sprintf("SELECT %s FROM request WHERE test_case_id = ? ORDER BY date_millis, request_id", requestFields)
	return i.queryRequests(ctx, query, testCaseID)
}

// FindRequest returns nil when there is no request with given id
func (i *Inventory) FindRequest(ctx context.Context, id string) (*Request, error) {
	query := fmt.Sprintf("SELECT %s FROM request WHERE request_id = ?", requestFields)
	reqs, err := i.queryRequests(ctx, query, id)
	if err != nil {
		return nil, err
	}

	if len(reqs) != 1 {
		return nil, nil
	}

	return reqs[0], nil
}

func (i *Inventory) queryRequests(ctx context.Context, query string, args ...interface{}) ([]*Request, error) {
	results := make([]*Request, 0)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dateTime string
		r := &Request{}

		err = rows.Scan(&r.ID, &r.EventID, &r.LookoutID, &r.LookoutDescription, &r.URL, &r.DateMillis, &dateTime,
			&r.Body, &r.HTTPMethod, &r.Headers, &r.Type, &r.ExpectedHTTPStatus, &r.ExpectedResponse, &r.AppID, &r.TestCaseID)
		if err != nil {
			return nil, err
		}

		r.DateTime, err = time.Parse(time.RFC3339Nano, dateTime)
		if err != nil {
			return nil, fmt.Errorf("Can't parse date of request %s: %w", r.ID, err)
		}

		results = append(results, r)
	}

	err = closeRows(rows)
	return results, err
}

// FindTestExecution returns nil when there is no execution with given id
func (i *Inventory) FindTestExecution(ctx context.Context, id string) (*TestExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM test_execution WHERE execution_id = ?", testExecutionFields)
	execs, err := i.queryTestExecutions(ctx, query, id)
	if err != nil {
		return nil, err
	}

	if len(execs) != 1 {
		return nil, nil
	}

	return execs[0], nil
}

func (i *Inventory) FindExecutionsForTestCase(ctx context.Context, testCaseID string) ([]*TestExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM test_execution WHERE test_case_id = ? ORDER BY execution_id", testExecutionFields)
	return i.queryTestExecutions(ctx, query, testCaseID)
}

func (i *Inventory) queryTestExecutions(ctx context.Context, query string, args ...interface{}) ([]*TestExecution, error) {
	results := make([]*TestExecution, 0)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var status, result sql.NullString
		e := &TestExecution{}

		err = rows.Scan(&e.ID, &e.TestCaseID, &status, &result)
		if err != nil {
			return nil, err
		}

		e.Status, err = scanStatus(status)
		if err != nil {
			return nil, fmt.Errorf("Execution %s: %w", e.ID, err)
		}

		e.Result = result.String
		results = append(results, e)
	}

	err = closeRows(rows)
	return results, err
}

func (i *Inventory) FindRequestExecutions(ctx context.Context, executionID string) ([]*RequestExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM request_execution WHERE execution_id = ? ORDER BY request_execution_id", requestExecutionFields)

	results := make([]*RequestExecution, 0)

	rows, err := i.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var description, url, body, method, headers, typ, response sql.NullString
		var status sql.NullInt64
		re := &RequestExecution{}

		err = rows.Scan(&re.ID, &description, &url, &body, &method, &headers, &typ, &status, &response,
			&re.ExecutionID, &re.RequestID)
		if err != nil {
			return nil, err
		}

		re.LookoutDescription = description.String
		re.URL = url.String
		re.Body = body.String
		re.HTTPMethod = method.String
		re.Headers = headers.String
		re.Type = typ.String
		re.HTTPStatus = int(status.Int64)
		re.Response = response.String

		results = append(results, re)
	}

	err = closeRows(rows)
	return results, err
}

func (i *Inventory) FindInternalRequestExecutions(ctx context.Context, executionID string) ([]*InternalRequestExecution, error) {
	query := fmt.Sprintf("SELECT %s FROM internal_request_execution WHERE execution_id = ? ORDER BY request_id", internalRequestExecutionFields)

	results := make([]*InternalRequestExecution, 0)

	rows, err := i.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var description, status sql.NullString
		ire := &InternalRequestExecution{}

		err = rows.Scan(&ire.TestCaseID, &ire.ExecutionID, &ire.RequestID, &description, &status)
		if err != nil {
			return nil, err
		}

		ire.Description = description.String
		ire.Status, err = scanStatus(status)
		if err != nil {
			return nil, fmt.Errorf("Request %s of execution %s: %w", ire.RequestID, ire.ExecutionID, err)
		}

		results = append(results, ire)
	}

	err = closeRows(rows)
	return results, err
}

// exec runs a single statement in its own transaction and expects at least one affected row
func (i *Inventory) exec(ctx context.Context, op string, query string, args ...interface{}) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "start transaction", Err: err}
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		tx.Rollback()
		return &PersistenceError{Op: op, Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return &PersistenceError{Op: op, Err: err}
	}

	if affected == 0 {
		tx.Rollback()
		return &PersistenceError{Op: op, Err: ErrNotFound}
	}

	err = tx.Commit()
	if err != nil {
		return &PersistenceError{Op: "commit " + op, Err: err}
	}

	return nil
}

// UpdateTestExecution stores status and result of the execution
func (i *Inventory) UpdateTestExecution(ctx context.Context, e *TestExecution) error {
	query := "UPDATE test_execution SET status = ?, result = ? WHERE execution_id = ?"
	return i.exec(ctx, "update test execution "+e.ID, query, e.Status.String(), e.Result, e.ID)
}

// UpdateInternalRequestExecution stores status and description of the association
func (i *Inventory) UpdateInternalRequestExecution(ctx context.Context, ire *InternalRequestExecution) error {
	query := "UPDATE internal_request_execution SET status = ?, description = ? WHERE test_case_id = ? AND execution_id = ? AND request_id = ?"
	return i.exec(ctx, "update internal request execution "+ire.RequestID, query,
		ire.Status.String(), nullString(ire.Description), ire.TestCaseID, ire.ExecutionID, ire.RequestID)
}

// DeleteTestCase deletes test case with all requests and executions
func (i *Inventory) DeleteTestCase(ctx context.Context, testCaseID string) error {
	query := "DELETE FROM test_case WHERE test_case_id = ?"
	return i.exec(ctx, "delete test case "+testCaseID, query, testCaseID)
}
