package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VK79/Radar12/internal/app"
	"github.com/VK79/Radar12/pkg/sdnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// stopGrace bounds the whole shutdown sequence; individual services get
// shorter slices inside it.
const stopGrace = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitoring daemon",
	Long: "run builds the application from the configuration file and keeps it\n" +
		"running until SIGINT or SIGTERM. Under systemd it reports readiness\n" +
		"and shutdown through the notify socket.",
	RunE: runAction,
}

func runAction(_ *cobra.Command, _ []string) error {
	// Secrets may live in a .env file next to the binary; absence is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	sdnotify.Ready()
	go sdnotify.Watchdog(ctx)

	// Done fires on a signal (via ctx) or on a fatal service error.
	<-a.Done()
	stop()

	sdnotify.Stopping()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		return err
	}
	return stopErr
}
