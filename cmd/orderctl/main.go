// orderctl — служебная утилита OrderFlow.
//
// Использование:
//
//	orderctl [--config FILE] [--ops-url URL] [--json] <command> [flags]
//
// Команды:
//
//	topology  Объявление exchanges, queues и bindings
//	publish   Публикация входящего заказа
//	migrate   Применение схемы хранилища
//	order     Просмотр и смена статуса заказов
//	status    Готовность order-ingestor
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/OrderFlow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	env := cli.NewEnv()

	rootCmd := &cobra.Command{
		Use:           "orderctl",
		Short:         "orderctl — OrderFlow operations tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&env.ConfigPath, "config", "", "Path to YAML config (default: $ORDERFLOW_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&env.OpsURL, "ops-url", env.OpsURL, "order-ingestor ops server URL")
	rootCmd.PersistentFlags().BoolVar(&env.JSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		cli.NewTopologyCmd(env),
		cli.NewPublishCmd(env),
		cli.NewMigrateCmd(env),
		cli.NewOrderCmd(env),
		cli.NewStatusCmd(env),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
