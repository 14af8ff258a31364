// Copyright © 2019 Packline

package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd is the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "revstore",
	Short: "Revstore administers file-based revisioned repositories",
	Long: `Revstore administers file-based append-only revisioned repositories.

A repository is a directory tree of immutable revision files. Closed
groups of revisions (shards) are consolidated into pack files with
their indexes, and revision properties are packed alongside. The
commands here create repositories, commit revisions, pack and verify
them, and repair the sidecar metadata after a crash.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if revstoreFlags.root.cpuProf {
			f, err := os.Create("cpu.prof")
			if err != nil {
				log.Fatal(err)
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note: *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if revstoreFlags.root.cpuProf {
			pprof.StopCPUProfile()
		}
	},
}

var config *CLIConfig

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	addRepoFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addCPUProfFlag(rootCmd)
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("log-level", "info")
	if os.Getenv("REVSTORE_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("REVSTORE_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.revstore")
		viper.AddConfigPath("/etc/revstore")
		viper.SetConfigName("revstore")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		infoLogger.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
	}
	config.setRevstoreParams(&revstoreFlags)
}
