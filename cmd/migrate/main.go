package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"roas-notifier/internal/db"
	"roas-notifier/internal/logger"
)

// Applies the Postgres schema used by the postgres registry and ledger.
//
//	migrate [-dsn postgres://...] up|down|version
func main() {
	dsnFlag := flag.String("dsn", "", "database URL (default $LEDGER_DSN, then $REGISTRY_DSN)")
	steps := flag.Int("steps", 1, "migrations to roll back with down")
	flag.Parse()

	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	dsn := *dsnFlag
	if dsn == "" {
		dsn = os.Getenv("LEDGER_DSN")
	}
	if dsn == "" {
		dsn = os.Getenv("REGISTRY_DSN")
	}
	if dsn == "" {
		fmt.Println("Error: -dsn or LEDGER_DSN is required")
		flag.Usage()
		os.Exit(1)
	}

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	var err error
	switch cmd {
	case "up":
		err = db.Migrate(dsn)
	case "down":
		err = db.MigrateDown(dsn, *steps)
	case "version":
		var v uint
		var dirty bool
		v, dirty, err = db.Version(dsn)
		if err == nil {
			fmt.Printf("version %d (dirty: %v)\n", v, dirty)
		}
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Migration failed", err, "command", cmd)
		os.Exit(1)
	}
	logger.Info(ctx, "Migration finished", "command", cmd)
}
