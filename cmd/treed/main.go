package main

import (
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/bluesky-social/treeset/models"
	"github.com/bluesky-social/treeset/nestedset"
	"github.com/bluesky-social/treeset/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "err", err.Error())
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "treed",
		Usage:   "nested-set tree maintenance over a relational table",
		Version: versioninfo.Short(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string (sqlite:// or postgres://)",
			Value:   "sqlite://data/treed/treed.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-conn",
			Usage:   "limit on size of database connection pool",
			Value:   20,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "table",
			Usage:   "table holding the tree rows",
			Value:   "nodes",
			EnvVars: []string{"TREED_TABLE"},
		},
		&cli.StringFlag{
			Name:    "table-alias",
			Usage:   "alias used for the table in generated queries",
			EnvVars: []string{"TREED_TABLE_ALIAS"},
		},
		&cli.StringFlag{
			Name:    "id-column",
			Value:   "id",
			EnvVars: []string{"TREED_ID_COLUMN"},
		},
		&cli.StringFlag{
			Name:    "left-column",
			Value:   "lft",
			EnvVars: []string{"TREED_LEFT_COLUMN"},
		},
		&cli.StringFlag{
			Name:    "right-column",
			Value:   "rgt",
			EnvVars: []string{"TREED_RIGHT_COLUMN"},
		},
		&cli.StringFlag{
			Name:    "label-column",
			Usage:   "optional payload column shown next to node ids (empty to disable)",
			Value:   "label",
			EnvVars: []string{"TREED_LABEL_COLUMN"},
		},
		&cli.Int64Flag{
			Name:    "root-id",
			Usage:   "explicit root node id (0 to detect from boundaries)",
			EnvVars: []string{"TREED_ROOT_ID"},
		},
		&cli.Int64Flag{
			Name:    "advisory-lock-key",
			Usage:   "postgres advisory lock key taken by every mutation (0 disables)",
			EnvVars: []string{"TREED_ADVISORY_LOCK_KEY"},
		},
		&cli.BoolFlag{
			Name:    "enable-db-tracing",
			EnvVars: []string{"TREED_ENABLE_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"TREED_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"TREED_LOG_FMT"},
		},
	}
	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(os.Stderr, cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		return err
	}
	app.Commands = []*cli.Command{
		cmdInit,
		cmdRoot,
		cmdInsert,
		cmdDelete,
		cmdMove,
		cmdShow,
		cmdDescendants,
		cmdAncestors,
		cmdChildren,
		cmdCheck,
		cmdServe,
		&cli.Command{
			Name:  "version",
			Usage: "print version",
			Action: func(cctx *cli.Context) error {
				fmt.Println(versioninfo.Short())
				return nil
			},
		},
	}
	return app.Run(args)
}

func engineConfig(cctx *cli.Context) *nestedset.Config {
	config := nestedset.DefaultConfig()
	config.Table = cctx.String("table")
	config.TableAlias = cctx.String("table-alias")
	config.IDColumn = cctx.String("id-column")
	config.LeftColumn = cctx.String("left-column")
	config.RightColumn = cctx.String("right-column")
	config.RootNodeID = cctx.Int64("root-id")
	config.AdvisoryLockKey = cctx.Int64("advisory-lock-key")
	return config
}

func openEngine(cctx *cli.Context) (*gorm.DB, *nestedset.Engine, error) {
	// validate names before touching the database
	config := engineConfig(cctx)
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	dburl := cctx.String("db-url")
	slog.Debug("configuring database", "maxConn", cctx.Int("max-db-conn"))
	db, err := cliutil.SetupDatabase(dburl, cctx.Int("max-db-conn"))
	if err != nil {
		return nil, nil, err
	}
	if cctx.Bool("enable-db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, nil, err
		}
	}

	// the default layout is created on demand; custom tables are managed elsewhere
	if config.Table == (models.TreeNode{}).TableName() {
		if err := models.RunAllMigrations(db); err != nil {
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	engine, err := nestedset.NewEngine(db, config)
	if err != nil {
		return nil, nil, err
	}
	return db, engine, nil
}
