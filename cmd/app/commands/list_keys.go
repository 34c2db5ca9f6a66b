package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/allisson/fieldcrypt/internal/app"
)

// RunListKeys prints all key versions with their status and algorithm.
// Key material is never printed, only metadata.
func RunListKeys(ctx context.Context, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	repo, err := container.KeyRepository()
	if err != nil {
		return fmt.Errorf("failed to initialize key repository: %w", err)
	}

	records, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No keys found. Run 'rotate-key' to create the first version.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATUS\tALGORITHM\tCREATED")
	for _, record := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			record.Version,
			record.Status,
			record.Algorithm,
			record.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}
