package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "greectl",
	Short: "Gree climate unit control CLI",
	Long:  `A command line interface for discovering, binding and controlling Gree-compatible climate units over their UDP protocol.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
