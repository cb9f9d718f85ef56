package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database/books"
)

const maxOverdueDays = 36500

// ListLoansCommand prints active loans, optionally only overdue ones.
type ListLoansCommand struct {
	DatabasePath string
	PatronID     string
	OverdueDays  int

	Now func() time.Time
	Out io.Writer
}

func NewListLoansCommand() *ListLoansCommand {
	return &ListLoansCommand{Now: time.Now, Out: os.Stdout}
}

func (cmd *ListLoansCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("list-loans", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database")
	fs.StringVar(&cmd.PatronID, "patron", "", "Only loans of this patron ID")
	fs.IntVar(&cmd.OverdueDays, "overdue-days", 0, "Only loans older than this many days")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s list-loans [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.OverdueDays < 0 || cmd.OverdueDays > maxOverdueDays {
		return fmt.Errorf("-overdue-days must be between 0 and %d", maxOverdueDays)
	}
	if cmd.OverdueDays > 0 && cmd.PatronID != "" {
		return fmt.Errorf("-patron and -overdue-days cannot be combined")
	}
	return nil
}

func (cmd *ListLoansCommand) Run() error {
	db, err := openDatabase(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := books.NewRepository(db.DB)
	ctx := context.Background()

	var loans []books.LoanWithTitle
	if cmd.OverdueDays > 0 {
		now := time.Now
		if cmd.Now != nil {
			now = cmd.Now
		}
		loans, err = repo.OverdueLoans(ctx, now().Add(-time.Duration(cmd.OverdueDays)*24*time.Hour))
	} else {
		loans, err = repo.ActiveLoans(ctx, cmd.PatronID)
	}
	if err != nil {
		return fmt.Errorf("failed to list loans: %w", err)
	}

	w := tabwriter.NewWriter(outOrStdout(cmd.Out), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tTITLE\tPATRON\tLOANED AT")
	for _, l := range loans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ItemID, l.Title, l.PatronID, l.LoanedAt.Format(time.DateTime))
	}
	fmt.Fprintf(w, "\n%d loans\n", len(loans))
	return w.Flush()
}
