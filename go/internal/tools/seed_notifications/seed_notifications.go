package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/auctionsync/go/internal/dbconfig"
	"github.com/mcdev12/auctionsync/go/internal/models"
)

// Announcement mirrors the JSON snapshot
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

func main() {
	path := "go/internal/assets/announcements.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var announcements []Announcement
	if err := json.Unmarshal(data, &announcements); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count. The hub's trigger announces every new row, so
	// connected clients receive the seeded announcements live.
	var (
		total    = len(announcements)
		inserted int
		skipped  int
		errs     int
	)

	for _, a := range announcements {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		payload, err := json.Marshal(models.Announcement{
			ID:      a.ID,
			Title:   a.Title,
			Content: a.Content,
			Author:  a.Author,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error encoding announcement %s: %v\n", a.ID, err)
			errs++
			continue
		}

		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO notifications (
              id, type, title, message, sender, recipient, payload, created_at
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8
            )
            ON CONFLICT (id) DO NOTHING
        `,
			a.ID, string(models.NotificationAnnouncement), a.Title, a.Content,
			a.Author, models.RecipientAll, payload, a.CreatedAt,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting announcement %s: %v\n", a.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Announcements seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
