package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/inference"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region inferd

// newInferdCmd serves the local lexicon over the inference RPC, so a
// separate engine (or a test rig) can use it as its remote inferrer.
func newInferdCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "inferd",
		Short: "Serve lexicon text inference over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeLog, err := g.load()
			if err != nil {
				return err
			}
			defer closeLog()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			gs := grpc.NewServer()
			inference.NewServer(signals.NewLexicon()).Register(gs)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				gs.GracefulStop()
			}()

			log.Info().Str("component", "inferd").Str("addr", lis.Addr().String()).Msg("serving inference")
			fmt.Fprintf(cmd.OutOrStdout(), "inference listening on %s\n", lis.Addr())
			if err := gs.Serve(lis); err != nil {
				return fmt.Errorf("serve inference: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "listen address")
	return cmd
}

// #endregion inferd
