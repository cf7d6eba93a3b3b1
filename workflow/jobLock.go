package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/collectives_backend/config"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

var ErrJobLocked = errors.New("job is running on another instance")

// jobLock is held for one run of a cron job.
type jobLock interface {
	Release(ctx context.Context) error
}

func jobLockName(job string) string {
	return fmt.Sprintf("cron:%s", job)
}

// acquireJobLock takes the redis lock of the job, falling back to a MySQL
// advisory lock when redis is not configured.
func acquireJobLock(ctx context.Context, job string, ttl time.Duration) (jobLock, error) {
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, jobLockName(job), ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrJobLocked
		}
		if err != nil {
			return nil, err
		}
		return lock, nil
	}
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("no lock backend available")
	}
	return acquireAdvisoryLock(ctx, db, job)
}

// advisoryLock pins one connection: GET_LOCK is connection-scoped.
type advisoryLock struct {
	conn *sql.Conn
	name string
}

func acquireAdvisoryLock(ctx context.Context, db *gorm.DB, job string) (*advisoryLock, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	name := jobLockName(job)
	var ok sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !ok.Valid || ok.Int64 != 1 {
		_ = conn.Close()
		return nil, ErrJobLocked
	}
	return &advisoryLock{conn: conn, name: name}, nil
}

func (l *advisoryLock) Release(ctx context.Context) error {
	defer l.conn.Close()
	_, err := l.conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.name)
	return err
}
