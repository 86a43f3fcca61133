package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmwalaszek/lookout/lookout"
)

var runnerFlags = []string{"base_url", "insecure", "ca", "cert", "key", "read_timeout", "write_timeout"}

// NewRunCmd replays requests of a test case from inventory
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run test case from inventory",
		Long: `Send every request of the test case one by one and save the responses
as a new execution. With --validate the execution is compared with expected responses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// workaround for https://github.com/spf13/viper/issues/233
			for _, name := range runnerFlags {
				viper.BindPFlag(name, cmd.Flags().Lookup(name))
			}

			testCaseID, err := cmd.Flags().GetString("test-case")
			if err != nil {
				return err
			}

			validate, err := cmd.Flags().GetBool("validate")
			if err != nil {
				return err
			}

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			runner, err := lookout.NewRunner(inv, runnerOptionsToStruct())
			if err != nil {
				return fmt.Errorf("Error while creating runner: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			defer signal.Stop(c)

			go func() {
				select {
				case <-c:
					log.Print("Received signal and will stop the run")
					cancel()
				case <-ctx.Done():
				}
			}()

			execution, err := runner.Run(ctx, testCaseID)
			if err != nil {
				return err
			}

			log.Printf("Execution %s: %s", execution.ID, execution.Result)

			if validate {
				execution, err = runner.Validate(ctx, execution.ID)
				if err != nil {
					return err
				}

				log.Printf("Execution %s: %s", execution.ID, execution.Result)
			}

			fmt.Fprintln(cmd.OutOrStdout(), execution)
			return nil
		},
	}

	cmd.Flags().StringP("test-case", "t", "", "Test case ID")
	cmd.Flags().BoolP("validate", "V", false, "Validate execution after run")
	cmd.Flags().StringP("base_url", "u", "", "Base URL for requests with relative URL")
	cmd.Flags().BoolP("insecure", "i", false, "TLS Skip verify")
	cmd.Flags().StringP("ca", "c", "", "CA path")
	cmd.Flags().StringP("cert", "F", "", "Cert path")
	cmd.Flags().StringP("key", "K", "", "Key path")
	cmd.Flags().DurationP("read_timeout", "R", time.Duration(0), "Read Timeout")
	cmd.Flags().DurationP("write_timeout", "W", time.Duration(0), "Write Timeout")

	cmd.MarkFlagRequired("test-case")

	return cmd
}

func runnerOptionsToStruct() *lookout.RunnerParameters {
	return &lookout.RunnerParameters{
		BaseURL:      viper.GetString("base_url"),
		SkipVerify:   viper.GetBool("insecure"),
		CA:           viper.GetString("ca"),
		Cert:         viper.GetString("cert"),
		Key:          viper.GetString("key"),
		ReadTimeout:  viper.GetDuration("read_timeout"),
		WriteTimeout: viper.GetDuration("write_timeout"),
	}
}
