package models

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// The claim's unique key makes MySQL reject a second active session for the
// same property/period/scope; the classifier decides which insert failures
// mean "busy" versus a real error.

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !isDuplicateKeyErr(dup) {
		t.Error("errno 1062 is a duplicate key")
	}
	if !isDuplicateKeyErr(fmt.Errorf("create claim: %w", dup)) {
		t.Error("wrapped 1062 is still a duplicate key")
	}
	if !isDuplicateKeyErr(gorm.ErrDuplicatedKey) {
		t.Error("gorm.ErrDuplicatedKey is a duplicate key")
	}
	if isDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock"}) {
		t.Error("a deadlock is not a duplicate key")
	}
	if isDuplicateKeyErr(errors.New("connection refused")) {
		t.Error("arbitrary errors are not duplicate keys")
	}
	if isDuplicateKeyErr(nil) {
		t.Error("nil is not a duplicate key")
	}
}
