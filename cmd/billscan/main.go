package main

import "github.com/voltmetric/billscan/cmd/billscan/cmd"

func main() {
	cmd.Execute()
}
