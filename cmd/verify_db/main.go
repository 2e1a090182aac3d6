package main

import (
	"context"
	"fmt"
	"log"

	"github.com/david/pimm/internal/config"
	"github.com/david/pimm/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var projects, withTerm, withPI, ended int
	err = pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(award_term_id),
			count(lead_pi_user_id),
			count(*) FILTER (WHERE performance_end < CURRENT_DATE)
		FROM projects
	`).Scan(&projects, &withTerm, &withPI, &ended)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	var users, operators int
	err = pool.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE operator) FROM users`).Scan(&users, &operators)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	var tracked, untracked int
	err = pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM pimm_tracked_projects),
			(SELECT count(*) FROM projects p WHERE NOT EXISTS (
				SELECT 1 FROM pimm_tracked_projects t WHERE t.nid = p.id))
	`).Scan(&tracked, &untracked)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Projects: %d\n", projects)
	fmt.Printf("With Award Term: %d\n", withTerm)
	fmt.Printf("With Lead PI Account: %d\n", withPI)
	fmt.Printf("Performance Ended: %d\n", ended)
	fmt.Printf("Users: %d (operators: %d)\n", users, operators)
	fmt.Printf("Tracked: %d, Untracked: %d\n", tracked, untracked)
}
