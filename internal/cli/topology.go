package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/OrderFlow/internal/mq"
)

// NewTopologyCmd создаёт команду объявления топологии RabbitMQ.
func NewTopologyCmd(env *Env) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Declare exchanges, queues and bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			out := env.Output()
			topo := cfg.RabbitMQ.Topology

			if !dryRun {
				conn, err := mq.NewConnection(cfg.RabbitMQ.URL, env.Logger(cfg))
				if err != nil {
					return fmt.Errorf("connect rabbitmq: %w", err)
				}
				defer conn.Close()

				if err := mq.SetupTopology(cmd.Context(), conn, topo); err != nil {
					return err
				}
				out.Success("Topology declared")
			}

			if env.JSON {
				out.JSON(topo)
				return nil
			}
			fmt.Fprint(env.Stdout, mq.TopologyInfo(topo))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print topology without connecting")

	return cmd
}
