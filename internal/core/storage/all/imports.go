// Package all wires every built-in storage backend into the storage factory.
// Import it for side effects:
//
//	import _ "github.com/aevon-lab/cohort/internal/core/storage/all"
package all

import (
	_ "github.com/aevon-lab/cohort/internal/core/storage/file"
	_ "github.com/aevon-lab/cohort/internal/core/storage/memory"
	_ "github.com/aevon-lab/cohort/internal/core/storage/mysql"
	_ "github.com/aevon-lab/cohort/internal/core/storage/postgres"
	_ "github.com/aevon-lab/cohort/internal/core/storage/sqlite"
)
