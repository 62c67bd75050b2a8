// Command blip talks to a market-data service: it subscribes, contributes,
// runs reference data requests and can serve a simulator to try them against.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
