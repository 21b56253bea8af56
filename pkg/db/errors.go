// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Class is the driver-independent classification of a database error.
type Class int

const (
	// ClassUnknown is any error the classifier does not recognise. It is
	// treated as transient.
	ClassUnknown Class = iota
	// ClassConnectivity covers network, authentication and timeout failures
	// reaching the server.
	ClassConnectivity
	// ClassLockContention is a lock or serialization conflict that succeeds
	// when retried.
	ClassLockContention
	// ClassAlreadyExists means the object being created is already there,
	// usually because a concurrent initializer created it first.
	ClassAlreadyExists
	// ClassNotFound means the database or schema addressed does not exist.
	ClassNotFound
	// ClassFatal is an error that retrying cannot fix: permission denied,
	// malformed SQL, corrupt files.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassConnectivity:
		return "connectivity"
	case ClassLockContention:
		return "lock_contention"
	case ClassAlreadyExists:
		return "already_exists"
	case ClassNotFound:
		return "not_found"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this class may succeed on a later
// attempt.
func (c Class) Retryable() bool {
	return c != ClassFatal
}

const (
	pgDuplicateDatabase     pq.ErrorCode = "42P04"
	pgDuplicateSchema       pq.ErrorCode = "42P06"
	pgDuplicateTable        pq.ErrorCode = "42P07"
	pgDuplicateObject       pq.ErrorCode = "42710"
	pgDuplicateColumn       pq.ErrorCode = "42701"
	pgDuplicateAlias        pq.ErrorCode = "42712"
	pgDuplicateFunction     pq.ErrorCode = "42723"
	pgUniqueViolation       pq.ErrorCode = "23505"
	pgLockNotAvailable      pq.ErrorCode = "55P03"
	pgDeadlockDetected      pq.ErrorCode = "40P01"
	pgSerializationFailure  pq.ErrorCode = "40001"
	pgInvalidCatalogName    pq.ErrorCode = "3D000"
	pgInvalidSchemaName     pq.ErrorCode = "3F000"
	pgFeatureNotSupported   pq.ErrorCode = "0A000"
	pgAdminShutdown         pq.ErrorCode = "57P01"
	pgCrashShutdown         pq.ErrorCode = "57P02"
	pgCannotConnectNow      pq.ErrorCode = "57P03"
	pgQueryCanceled         pq.ErrorCode = "57014"
	pgClassConnection       pq.ErrorClass = "08"
	pgClassInvalidAuth      pq.ErrorClass = "28"
	pgClassResources        pq.ErrorClass = "53"
	pgClassSyntaxOrAccess   pq.ErrorClass = "42"
	pgClassInvalidStatement pq.ErrorClass = "26"
)

const (
	myDBCreateExists       uint16 = 1007
	myTableExists          uint16 = 1050
	myDupFieldName         uint16 = 1060
	myDupKeyName           uint16 = 1061
	myDupEntry             uint16 = 1062
	myLockWaitTimeout      uint16 = 1205
	myLockDeadlock         uint16 = 1213
	myBadDB                uint16 = 1049
	myDBAccessDenied       uint16 = 1044
	myAccessDenied         uint16 = 1045
	myTableAccessDenied    uint16 = 1142
	mySpecificAccessDenied uint16 = 1227
	myParseError           uint16 = 1064
	myTooManyConnections   uint16 = 1040
	myServerShutdown       uint16 = 1053
	mySPAlreadyExists      uint16 = 1304
	myTriggerExists        uint16 = 1359
	myFKDupName            uint16 = 1826
)

// Error attaches an explicit Class to an error. Drivers and fakes use it to
// classify errors that carry no driver error code.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Mark returns err annotated with class. A nil err stays nil.
func Mark(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Err: err}
}

// Classify inspects the error chain of err and returns its Class. The
// decision is made on driver error codes and error types only.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var marked *Error
	if errors.As(err, &marked) {
		return marked.Class
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return classifySQLite(liteErr.Code())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ClassConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassConnectivity
	}

	return ClassUnknown
}

// IsAlreadyExists reports whether err means the object already exists.
func IsAlreadyExists(err error) bool {
	return Classify(err) == ClassAlreadyExists
}

// IsLockContention reports whether err is a lock conflict worth retrying
// immediately.
func IsLockContention(err error) bool {
	return Classify(err) == ClassLockContention
}

// IsNotFound reports whether err means the addressed database or schema
// does not exist.
func IsNotFound(err error) bool {
	return Classify(err) == ClassNotFound
}

// IsFatal reports whether err cannot be fixed by retrying.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}

func classifyPostgres(code pq.ErrorCode) Class {
	switch code {
	// duplicate codes sit in class 42 and must be matched before it
	case pgDuplicateDatabase, pgDuplicateSchema, pgDuplicateTable, pgDuplicateObject,
		pgDuplicateColumn, pgDuplicateAlias, pgDuplicateFunction, pgUniqueViolation:
		return ClassAlreadyExists
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
		return ClassLockContention
	case pgInvalidCatalogName, pgInvalidSchemaName:
		return ClassNotFound
	case pgAdminShutdown, pgCrashShutdown, pgCannotConnectNow, pgQueryCanceled:
		return ClassConnectivity
	case pgFeatureNotSupported:
		return ClassFatal
	}

	switch code.Class() {
	case pgClassConnection, pgClassInvalidAuth, pgClassResources:
		return ClassConnectivity
	case pgClassSyntaxOrAccess, pgClassInvalidStatement:
		return ClassFatal
	}

	return ClassUnknown
}

func classifyMySQL(number uint16) Class {
	switch number {
	case myDBCreateExists, myTableExists, myDupFieldName, myDupKeyName, myDupEntry,
		mySPAlreadyExists, myTriggerExists, myFKDupName:
		return ClassAlreadyExists
	case myLockWaitTimeout, myLockDeadlock:
		return ClassLockContention
	case myBadDB:
		return ClassNotFound
	case myAccessDenied, myTooManyConnections, myServerShutdown:
		return ClassConnectivity
	case myDBAccessDenied, myTableAccessDenied, mySpecificAccessDenied, myParseError:
		return ClassFatal
	}

	return ClassUnknown
}

func classifySQLite(code int) Class {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return ClassAlreadyExists
	}

	// extended result codes carry the primary code in the low byte
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return ClassLockContention
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
		return ClassConnectivity
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH,
		sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return ClassFatal
	}

	return ClassUnknown
}
