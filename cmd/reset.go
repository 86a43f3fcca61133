package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop and create all inventory tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := openInventory()
			if err != nil {
				return err
			}
			defer inv.Close()

			if err := inv.Reset(context.Background()); err != nil {
				return err
			}

			log.Print("Inventory schema recreated")
			return nil
		},
	}
}
