package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/david/pimm/internal/auth"
	"github.com/david/pimm/internal/config"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/importer"
	"github.com/david/pimm/internal/logging"
)

func main() {
	path := flag.String("file", "", "CSV or XLSX file to import")
	delimiter := flag.String("delimiter", ",", "CSV delimiter: one of , ~ ; :")
	confirm := flag.Bool("confirm", false, "commit the import after the preview")
	flag.Parse()

	if *path == "" {
		log.Fatal("Please provide a file using -file flag")
	}
	if utf8.RuneCountInString(*delimiter) != 1 {
		log.Fatalf("Invalid delimiter %q", *delimiter)
	}
	sep, _ := utf8.DecodeRuneInString(*delimiter)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	repo, err := db.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer repo.Close()

	mappings, err := importer.LoadMappings(cfg.Import.MappingsFile)
	if err != nil {
		logger.Fatal("failed to load mappings", zap.Error(err))
	}
	provisioner := auth.NewProvisioner(repo, cfg.Import.EmailDomain, cfg.PasswordLength, logger)
	im := importer.New(repo, provisioner, mappings, importer.Options{
		Sponsor:         cfg.Import.Sponsor,
		EagerAwardTerms: cfg.Import.EagerAwardTerms,
		SessionTTL:      cfg.Import.SessionTTL,
	}, logger)

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *path, err)
	}

	sess, err := im.Preview(ctx, importer.Upload{Filename: filepath.Base(*path), Data: data, Delimiter: sep})
	if err != nil {
		log.Fatalf("Preview failed: %v", err)
	}
	fmt.Print(sess.Summary.Text())

	if !*confirm {
		fmt.Println("Preview only. Re-run with -confirm to apply.")
		return
	}

	res, err := im.Confirm(ctx, sess.ID)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	fmt.Println(res.Message)
	for _, e := range res.Errors {
		fmt.Printf("  line %d (%s): %s\n", e.Line, e.AwardNumber, e.Message)
	}
	if len(res.Errors) > 0 {
		os.Exit(1)
	}
}
