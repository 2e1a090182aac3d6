package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/config"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/logging"
	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/tracking"
)

func main() {
	status := flag.String("status", "", "only show entries with this status")
	bulk := flag.Bool("bulk", false, "track every untracked project before listing")
	addedBy := flag.Int64("user", 0, "operator user ID recorded on bulk-added entries")
	flag.Parse()

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

	manager := tracking.NewManager(repo, cache.New(), logger)

	if *bulk {
		if *addedBy <= 0 {
			log.Fatal("Please provide the operator using -user flag")
		}
		adder := tracking.NewBulkAdder(manager, cfg.Tracking.ChunkSize, logger)
		res, err := adder.Run(ctx, *addedBy, func(done, total int) {
			fmt.Printf("\rTracked %d/%d", done, total)
		})
		fmt.Println()
		if err != nil {
			log.Fatalf("Bulk add failed: %v", err)
		}
		fmt.Println(res.Message)
	}

	list, err := manager.List(ctx, db.TrackingQuery{Status: models.TrackingStatus(*status)})
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"NID", "Award", "Title", "Status", "Added", "Ends", "Notes"})
	for _, tp := range list {
		ends := "N/A"
		if tp.Project.PerformanceEnd != nil {
			ends = tp.Project.PerformanceEnd.Format("2006-01-02")
		}
		t.AppendRow(table.Row{
			tp.Project.ID,
			tp.Project.AwardNumber,
			tp.Project.Title,
			tp.Tracking.Status,
			tp.Tracking.AddedDate.Format("2006-01-02"),
			ends,
			tp.Tracking.Notes,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(list)})
	t.Render()
}
