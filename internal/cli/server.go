package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	transport "quizdesk/internal/transport/http"
)

// NewServeCmd builds the subcommand that streams the session state to a
// local browser shell.
func NewServeCmd(configPath *string) *cobra.Command {
	envPort := os.Getenv("PORT")
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session stream on /ws/session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", envPort, "port to listen on")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	d, err := loadDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = d.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewMux(transport.NewSessionHandler(d.bridge)),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("serving session stream on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
