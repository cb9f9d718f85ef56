package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/config"
	"github.com/mrlokans/schoollibrary/internal/database/books"
	"github.com/mrlokans/schoollibrary/internal/database/users"
	"github.com/mrlokans/schoollibrary/internal/library"
)

// ErrInconsistent is returned when the check finds discrepancies.
var ErrInconsistent = errors.New("library state is inconsistent")

// CheckConsistencyCommand loads the library from the database and reports
// entries whose status disagrees with the loan ledger. Run it while the
// server is stopped.
type CheckConsistencyCommand struct {
	DatabasePath string
	Verbose      bool

	Out io.Writer
}

func NewCheckConsistencyCommand() *CheckConsistencyCommand {
	return &CheckConsistencyCommand{Out: os.Stdout}
}

func (cmd *CheckConsistencyCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("check-consistency", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the library database")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Log repairs made while loading")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s check-consistency [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	return fs.Parse(args)
}

func (cmd *CheckConsistencyCommand) Run() error {
	out := outOrStdout(cmd.Out)

	db, err := openDatabase(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := zerolog.Nop()
	if cmd.Verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	engine := library.NewEngine(books.NewRepository(db.DB), users.NewRepository(db.DB), library.WithLogger(logger))
	ctx := context.Background()
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}

	found, err := engine.CheckConsistency(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	stats := engine.Stats()
	fmt.Fprintf(out, "Entries: %d, active loans: %d\n", stats.Entries, stats.ActiveLoans)
	if len(found) == 0 {
		fmt.Fprintln(out, "No discrepancies found")
		return nil
	}
	for _, d := range found {
		fmt.Fprintf(out, "  [%s] %s\n", d.ItemID, d.Detail)
	}
	return fmt.Errorf("%w: %d discrepancies", ErrInconsistent, len(found))
}
