// Package all registers every storage backend. Blank-import it from a main
// package to make the backends selectable by kind.
package all

import (
	_ "fleetimport/internal/storage/mssql"
	_ "fleetimport/internal/storage/postgres"
	_ "fleetimport/internal/storage/sqlite"
)
