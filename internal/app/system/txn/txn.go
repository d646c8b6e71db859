// Package txn runs multi-document MongoDB writes atomically when the
// deployment supports transactions, and sequentially when it does not
// (standalone servers used in development).
//
//	err := txn.Run(ctx, db, log, func(ctx context.Context) error {
//	    if err := profiles.DeleteByUser(ctx, id); err != nil {
//	        return err
//	    }
//	    return users.Delete(ctx, id)
//	})
//
// Stores called inside fn must use the ctx they are given so their
// operations join the session.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Func is a unit of work. ctx is a mongo.SessionContext when a transaction
// is active and the caller's context otherwise.
type Func func(ctx context.Context) error

// Run executes fn inside a transaction, falling back to a plain call when
// the server rejects transactions. A nil log suppresses fallback warnings.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn Func) error {
	session, err := db.Client().StartSession()
	if err != nil {
		warn(log, "failed to start session, running without transaction", err)
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		warn(log, "transactions not supported, running without transaction", err)
		return fn(ctx)
	}
	return err
}

func warn(log *zap.Logger, msg string, err error) {
	if log != nil {
		log.Warn(msg, zap.Error(err))
	}
}

// IsNotSupported reports whether err means the deployment cannot run
// multi-document transactions. Codes: 20 (IllegalOperation on standalone),
// 51, 263.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported", "illegal operation"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}

// Runner binds Run to db and log, for callers that take the transaction
// runner as a dependency.
func Runner(db *mongo.Database, log *zap.Logger) func(ctx context.Context, fn Func) error {
	return func(ctx context.Context, fn Func) error {
		return Run(ctx, db, log, fn)
	}
}
