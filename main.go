package main

import (
	_ "time/tzdata"

	"github.com/kozaktomas/punchclock/cmd"
	_ "github.com/kozaktomas/punchclock/internal/database/mariadb"
	_ "github.com/kozaktomas/punchclock/internal/database/postgres"
	_ "github.com/kozaktomas/punchclock/internal/database/sqlite"
)

func main() {
	cmd.Execute()
}
