package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/entities"
)

// ListBooksCommand prints the catalog.
type ListBooksCommand struct {
	DatabasePath string
	Query        string
	Status       string

	Out io.Writer
}

func NewListBooksCommand() *ListBooksCommand {
	return &ListBooksCommand{Out: os.Stdout}
}

func (cmd *ListBooksCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("list-books", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database")
	fs.StringVar(&cmd.Query, "q", "", "Only entries whose title or author contains this text")
	fs.StringVar(&cmd.Status, "status", "", "Only entries with this status (Available or Loaned)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s list-books [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Status != "" && !entities.EntryStatus(cmd.Status).Valid() {
		return fmt.Errorf("invalid status %q: must be Available or Loaned", cmd.Status)
	}
	return nil
}

func (cmd *ListBooksCommand) Run() error {
	db, err := openDatabase(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := books.NewRepository(db.DB)
	ctx := context.Background()

	var entries []entities.CatalogEntry
	if cmd.Query != "" {
		entries, err = repo.SearchEntries(ctx, cmd.Query)
	} else {
		entries, err = repo.ListEntries(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	w := tabwriter.NewWriter(outOrStdout(cmd.Out), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tGRADE\tSTATUS")
	shown := 0
	for _, e := range entries {
		if cmd.Status != "" && e.Status != entities.EntryStatus(cmd.Status) {
			continue
		}
		grade := "-"
		if e.GradeLevel != nil {
			grade = fmt.Sprint(*e.GradeLevel)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Title, e.Author, grade, e.Status)
		shown++
	}
	fmt.Fprintf(w, "\n%d entries\n", shown)
	return w.Flush()
}
