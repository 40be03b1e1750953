//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

var driver = driverInfo{
	Info: Info{
		Name:    "sqlite",
		Kind:    "purego",
		Package: "modernc.org/sqlite",
	},
	busyTimeout: "_pragma=busy_timeout(5000)",
}
