//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger, now func() time.Time) (Store, error) {
	_, _, _ = cfg, log, now
	return nil, errors.New("sqlite audit storage not built: build with -tags sqlite")
}
