package main

import "github.com/vibast-solutions/ms-go-booking-payments/cmd"

func main() {
	cmd.Execute()
}
