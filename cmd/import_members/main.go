// Command import_members seeds the member list from a CSV file with the
// header name,phone,email,role. Only name is required.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"cellule-dashboard/cellule"
	"cellule-dashboard/internal/config"
	"cellule-dashboard/internal/logger"
)

func main() {
	fresh := flag.Bool("fresh", false, "wipe the database before importing")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: import_members [-fresh] members.csv\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	manager, err := cellule.NewCellManager(cfg.DatabasePath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	ctx := context.Background()
	if *fresh {
		fmt.Println("Wiping existing data...")
		if _, err := manager.ResetDatabase(ctx, cellule.ResetConfirmation); err != nil {
			fmt.Fprintf(os.Stderr, "Error resetting database: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Importing members from %s...\n", flag.Arg(0))
	ok, failed, err := importMembers(ctx, manager, f, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CSV: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d members\n", ok)
	fmt.Printf("Errors: %d\n", failed)
}

// importMembers adds one member per CSV row. Rows that fail validation are
// reported and skipped; a malformed file stops the import.
func importMembers(ctx context.Context, mgr *cellule.CellManager, r io.Reader, out io.Writer) (ok, failed int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, found := cols["name"]; !found {
		return 0, 0, fmt.Errorf("missing name column in header %v", header)
	}
	field := func(rec []string, name string) string {
		i, found := cols[name]
		if !found || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ok, failed, err
		}

		name := field(rec, "name")
		id, err := mgr.AddMember(ctx, name, field(rec, "phone"), field(rec, "email"), cellule.Role(field(rec, "role")))
		if err != nil {
			fmt.Fprintf(out, "line %d: ERROR - %v\n", line, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Imported %s (ID: %d)\n", strings.TrimSpace(name), id)
		ok++
	}
	return ok, failed, nil
}
