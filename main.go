package main

import (
	"os"

	"github.com/ekaya-inc/ekaya-metagraph/cmd"

	// Adapters register themselves when built with their tag or all_adapters.
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/mongodb"
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/oracle"
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(cmd.Execute(Version))
}
