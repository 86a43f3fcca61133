package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/tmwalaszek/lookout/lookout"
)

// NewDemoCmd recreates the inventory and fills it with the demo test case
func NewDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Reset inventory and save demo test case",
		Long: `Drop and create all tables, then save the app-test/look123 test case
with three requests. With --execution an INITIATED execution is added too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			withExecution, err := cmd.Flags().GetBool("execution")
			if err != nil {
				return err
			}

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			ctx := context.Background()

			log.Print("Create tables")
			if err := inv.Reset(ctx); err != nil {
				return err
			}

			fixture := lookout.DemoFixture()
			testCase, requests := fixture.Records()
			testCase.Created = time.Now().UTC()

			session := inv.NewSession()

			log.Printf("Create test case %s", testCase.ID)
			session.Add(testCase)

			log.Print("Create requests")
			for _, r := range requests {
				log.Printf("Request %s -> %s %s", r.ID, r.HTTPMethod, r.URL)
				session.Add(r)
			}

			if withExecution {
				execution := lookout.NewTestExecution(testCase.ID, "")
				log.Printf("Create execution %s", execution.ID)
				session.Add(execution)

				for _, r := range requests {
					session.Add(lookout.NewInternalRequestExecution(testCase.ID, execution.ID, r.ID))
				}
			}

			log.Printf("Commit %d records", session.Pending())
			if err := session.Commit(ctx); err != nil {
				return err
			}

			log.Printf("Test case %s saved with %d requests", testCase.ID, len(requests))
			return nil
		},
	}

	cmd.Flags().BoolP("execution", "e", false, "Also create an execution of the demo test case")

	return cmd
}
