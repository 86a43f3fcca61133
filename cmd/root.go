package cmd

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmwalaszek/lookout/lookout"
)

var (
	cfgFile string
	dbFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lookout",
	Short: "Lookout CLI",
	Long: `Lookout CLI keeps recorded HTTP requests grouped in test cases.
Requests can be replayed with fasthttp and validated against the expected responses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	defaultConfFile := path.Join(home, ".lookout", "lookout.yaml")
	defaultDbFile := path.Join(home, ".lookout", "lookout.db")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfFile, "config file")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", defaultDbFile, "Inventory file location")

	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	cobra.OnInitialize(initConfig)

	showCmd := NewShowCmd()
	showCmd.AddCommand(NewShowTestCaseCmd(), NewShowExecutionCmd())

	rootCmd.AddCommand(
		NewDemoCmd(),
		NewResetCmd(),
		NewAddCmd(),
		NewRunCmd(),
		NewDeleteCmd(),
		showCmd,
	)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("LOOKOUT")
	viper.AutomaticEnv() // read in environment variables that match

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else if viper.GetString("CONFIG") != "" {
		viper.SetConfigFile(viper.GetString("CONFIG"))
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return
		}

		log.Fatalf("Could not load lookout config file: %v", err)
	}
}

// openInventory opens the inventory configured with --db, creating its directory if needed
func openInventory() (*lookout.Inventory, error) {
	db := viper.GetString("db")

	if err := os.MkdirAll(filepath.Dir(db), 0755); err != nil {
		return nil, fmt.Errorf("Can't create inventory directory: %w", err)
	}

	inv, err := lookout.NewInventory(db)
	if err != nil {
		return nil, fmt.Errorf("Can't open inventory %s: %w", db, err)
	}

	return inv, nil
}
