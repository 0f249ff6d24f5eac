package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/aria/pkg/aria"
	"github.com/cuemby/aria/pkg/config"
	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/validate"
)

var (
	legacyRoot   = flag.String("legacy-root", "/var/lib/zeroclaw/instances", "Root directory holding one subdirectory per tenant, each with a legacy config.toml")
	registryPath = flag.String("registry", "/var/lib/aria/registry.db", "Path to the aria registry SQLite database")
	dryRun       = flag.Bool("dry-run", false, "Show what would be imported without writing to the registry")
	backupPath   = flag.String("backup", "", "Path to back up the registry database before importing (default: <registry>.backup)")
)

// legacyRecord is the shape of a pre-aria instance directory: one
// config.toml per tenant, validated before it becomes a registry row.
type legacyRecord struct {
	Name         string `validate:"required"`
	Port         int    `validate:"required,gte=1,lte=65535"`
	WorkspaceDir string `validate:"required"`
	dir          string
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Aria Legacy Instance Import Tool")
	log.Println("================================")
	log.Printf("Legacy root: %s", *legacyRoot)
	log.Printf("Registry: %s", *registryPath)
	log.Printf("Dry run: %v", *dryRun)

	entries, err := os.ReadDir(*legacyRoot)
	if err != nil {
		log.Fatalf("Failed to read legacy root: %v", err)
	}

	records, skipped := discoverRecords(*legacyRoot, entries)
	log.Printf("Found %d candidate tenant directories (%d skipped: missing, unreadable or invalid config.toml)", len(records), skipped)
	if len(records) == 0 {
		log.Println("Nothing to import.")
		return
	}

	if !*dryRun {
		if _, err := os.Stat(*registryPath); err == nil {
			backupFile := *backupPath
			if backupFile == "" {
				backupFile = *registryPath + ".backup"
			}
			log.Printf("Creating backup: %s", backupFile)
			if err := copyFile(*registryPath, backupFile); err != nil {
				log.Fatalf("Failed to create backup: %v", err)
			}
			log.Println("Backup created successfully")
		}
	}

	if err := importRecords(records, *registryPath, *dryRun); err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the import.")
	} else {
		log.Println("\nImport completed.")
	}
}

// discoverRecords walks the legacy root's immediate subdirectories,
// decoding and validating each one's config.toml. Invalid or unreadable
// entries are logged and skipped rather than aborting the whole run.
func discoverRecords(root string, entries []os.DirEntry) ([]legacyRecord, int) {
	var records []legacyRecord
	skipped := 0

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(root, name)
		cfgPath := filepath.Join(dir, "config.toml")
		cfg, err := config.ReadInstanceConfig(cfgPath)
		if err != nil {
			log.Printf("  skip %s: %v", dir, err)
			skipped++
			continue
		}

		rec := legacyRecord{
			Name:         cfg.Name,
			Port:         cfg.Port,
			WorkspaceDir: cfg.WorkspaceDir,
			dir:          dir,
		}
		if fieldErrs := validate.Struct(rec); fieldErrs != nil {
			log.Printf("  skip %s: invalid record: %v", dir, fieldErrs)
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped
}

// importRecords inserts one Instance row per legacy record. Running this
// twice against the same registry hits the (name, port) uniqueness
// constraints on the second pass and fails that record cleanly, leaving
// the instance count unchanged.
func importRecords(records []legacyRecord, registryPath string, dryRun bool) error {
	if dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		for _, rec := range records {
			log.Printf("  create instance %q port=%d workspace=%s (from %s)", rec.Name, rec.Port, rec.WorkspaceDir, rec.dir)
		}
		return nil
	}

	registries, err := aria.Open(registryPath)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer registries.Close()

	instances := registry.NewInstanceRegistry(registries.DB)

	ctx := context.Background()
	var created, failed int
	for _, rec := range records {
		_, err := instances.Create(ctx, registry.InstanceCreate{
			Name:         rec.Name,
			Port:         rec.Port,
			ConfigPath:   filepath.Join(rec.dir, "config.toml"),
			WorkspaceDir: rec.WorkspaceDir,
		})
		if err != nil {
			log.Printf("  FAILED %s: %v", rec.Name, err)
			failed++
			continue
		}
		log.Printf("  imported %s (port %d)", rec.Name, rec.Port)
		created++
	}

	log.Printf("\n%d imported, %d failed", created, failed)
	if created == 0 && failed > 0 {
		return errors.New("no records imported, all collided or were rejected")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
