package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - 주문 스테이징/승인 엔진",
	Long: `Bastion Unified CLI

주문 스테이징, 리스크 스코어링, 컴플라이언스 평가, 승인 워크플로를
하나의 엔진으로 제공합니다.

Usage:
  go run ./cmd/bastion [command]

Examples:
  go run ./cmd/bastion api
  go run ./cmd/bastion stage --symbol SPY --side BUY --qty 100
  go run ./cmd/bastion sweep
  go run ./cmd/bastion test-db
  go run ./cmd/bastion test-logger`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
