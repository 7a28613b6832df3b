package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/backup"
	"github.com/LabGraphTeam/labgraph/internal/server"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("output", "", "archive path (default labgraph-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	archive := *output
	if archive == "" {
		archive = fmt.Sprintf("labgraph-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), v.GetString("database.dsn"), v.ConfigFileUsed(), archive); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archive)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	target := fs.String("target", "", "directory to restore into (default: database directory)")
	force := fs.Bool("force", false, "overwrite existing files")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: labgraph restore [-target <dir>] [-force] <archive>")
		os.Exit(2)
	}

	dir := *target
	if dir == "" {
		v, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		dir = filepath.Dir(v.GetString("database.dsn"))
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), dir, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("restored %s into %s\n", fs.Arg(0), dir)
}
