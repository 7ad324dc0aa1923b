package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixrelay/pixrelay/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:   "pixrelay",
		Short: "Discord bridge that forwards images and text to a receiver service",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
