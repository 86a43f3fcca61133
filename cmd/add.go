package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/tmwalaszek/lookout/lookout"
)

// NewAddCmd represents the add command
func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add test case",
		Long:  "Add test case with its requests. At the moment you can only add test case from yaml file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("file")
			if err != nil {
				return err
			}

			fixture, err := lookout.LoadFixture(file)
			if err != nil {
				return err
			}

			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			testCase, requests := fixture.Records()

			session := inv.NewSession()
			session.Add(testCase)
			for _, r := range requests {
				session.Add(r)
			}

			if err := session.Commit(context.Background()); err != nil {
				return err
			}

			log.Printf("Test case added successfuly with id: %s (%d requests)", testCase.ID, len(requests))
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "Test case yaml file")
	cmd.MarkFlagRequired("file")

	return cmd
}
