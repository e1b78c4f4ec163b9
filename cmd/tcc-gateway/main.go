// Command tcc-gateway bridges TCC clients to the Tactical Control Component's
// CAN bus.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
