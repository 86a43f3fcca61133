package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// NewDeleteCmd represents the delete command
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete test case with all data associated",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cmd.Flags().GetString("test-case")
			if err != nil {
				return err
			}

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			if err := inv.DeleteTestCase(context.Background(), id); err != nil {
				return err
			}

			log.Printf("Test case %s with all data removed\n", id)
			return nil
		},
	}

	cmd.Flags().StringP("test-case", "t", "", "Test case ID")
	cmd.MarkFlagRequired("test-case")

	return cmd
}
