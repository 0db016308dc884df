package main

import "price-threshold-alerts/internal/cli"

func main() {
	cli.Execute()
}
