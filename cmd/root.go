package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "booking-payments",
	Short: "Booking payments microservice",
	Long:  "Payment intents, confirmation, gateway webhooks and reconciliation for bookings and guest quotes.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
