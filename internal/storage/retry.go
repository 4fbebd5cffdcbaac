package storage

import (
	"database/sql/driver"
	"errors"
	"log"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// isTransient reports whether err looks like a connection-level failure that
// is worth a single retry. 业务错误（重复键、未找到等）永远不会被重试。
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 — Connection Exception
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return false
}

// withRetryOnce runs fn and retries it exactly once if it fails with a
// transient connection error. fn 必须以事务为单位执行：失败的事务已回滚，
// 重试不会产生重复副作用；若提交后连接才断开，pending 唯一索引会让重试
// 以重复键失败，同样不会写入第二条记录。
func withRetryOnce(fn func() error) error {
	err := fn()
	if err == nil || !isTransient(err) {
		return err
	}
	log.Printf("storage: transient error, retrying once: %v", err)
	return fn()
}
