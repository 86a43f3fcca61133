package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tmwalaszek/lookout/lookout"
)

// NewShowCmd represents the show command
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show test cases or executions",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Usage()
		},
	}
}

func NewShowTestCaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testcase",
		Short: "Show test cases, with --id show its requests and executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			app, _ := cmd.Flags().GetString("app")
			full, _ := cmd.Flags().GetBool("full")

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			if id != "" {
				return showTestCase(ctx, out, inv, id, full)
			}

			var tcs []*lookout.TestCase
			if app != "" {
				tcs, err = inv.FindTestCasesByApp(ctx, app)
			} else {
				tcs, err = inv.FindAllTestCases(ctx)
			}
			if err != nil {
				return fmt.Errorf("Can't get test cases from the database: %w", err)
			}

			fmt.Fprintf(out, "Found %d test cases\n", len(tcs))

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"ID", "APP", "LOOKOUT", "VERSION", "CREATED"})
			for _, tc := range tcs {
				table.Append([]string{tc.ID, tc.AppID, tc.LookoutID, tc.Version, formatTime(tc.Created)})
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringP("id", "i", "", "Test case id")
	cmd.Flags().StringP("app", "a", "", "Application id")
	cmd.Flags().BoolP("full", "f", false, "Show full request details")

	return cmd
}

func showTestCase(ctx context.Context, out io.Writer, inv *lookout.Inventory, id string, full bool) error {
	tc, err := inv.FindTestCase(ctx, id)
	if err != nil {
		return fmt.Errorf("Can't get test case from the database: %w", err)
	}

	if tc == nil {
		return fmt.Errorf("Test case %s does not exist", id)
	}

	fmt.Fprintln(out, tc)

	requests, err := inv.FindRequestsForTestCase(ctx, id)
	if err != nil {
		return fmt.Errorf("Can't get requests from the database: %w", err)
	}

	fmt.Fprintf(out, "Requests: %d\n", len(requests))
	if full {
		for _, r := range requests {
			fmt.Fprintln(out, r)
		}
	} else {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"ID", "DESCRIPTION", "METHOD", "URL", "EXPECTED STATUS"})
		for _, r := range requests {
			table.Append([]string{r.ID, r.LookoutDescription, r.HTTPMethod, r.URL, strconv.Itoa(r.ExpectedHTTPStatus)})
		}
		table.Render()
	}

	executions, err := inv.FindExecutionsForTestCase(ctx, id)
	if err != nil {
		return fmt.Errorf("Can't get executions from the database: %w", err)
	}

	fmt.Fprintf(out, "Executions: %d\n", len(executions))
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "STATUS", "RESULT"})
	for _, e := range executions {
		table.Append([]string{e.ID, e.Status.String(), e.Result})
	}
	table.Render()

	return nil
}

func NewShowExecutionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Show execution with observed responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			execution, err := inv.FindTestExecution(ctx, id)
			if err != nil {
				return fmt.Errorf("Can't get execution from the database: %w", err)
			}

			if execution == nil {
				return fmt.Errorf("Execution %s does not exist", id)
			}

			fmt.Fprintln(out, execution)

			res, err := inv.FindRequestExecutions(ctx, id)
			if err != nil {
				return fmt.Errorf("Can't get request executions from the database: %w", err)
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"ID", "METHOD", "URL", "STATUS", "RESPONSE SIZE"})
			for _, re := range res {
				status := "-"
				if re.HTTPStatus != 0 {
					status = strconv.Itoa(re.HTTPStatus)
				}
				table.Append([]string{re.ID, re.HTTPMethod, re.URL, status, bytefmt.ByteSize(uint64(len(re.Response)))})
			}
			table.Render()

			ires, err := inv.FindInternalRequestExecutions(ctx, id)
			if err != nil {
				return fmt.Errorf("Can't get request states from the database: %w", err)
			}

			table = tablewriter.NewWriter(out)
			table.SetHeader([]string{"REQUEST", "STATUS", "DESCRIPTION"})
			for _, ire := range ires {
				table.Append([]string{ire.RequestID, ire.Status.String(), ire.Description})
			}
			table.Render()

			return nil
		},
	}

	cmd.Flags().StringP("id", "i", "", "Execution id")
	cmd.MarkFlagRequired("id")

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339)
}
