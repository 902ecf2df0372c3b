// main.go - Entry point for the rolling door backend

package main // Declares the package name

import "rollingdoor-backend/cmd" // Cobra commands (serve, sweep)

func main() { // Main function, program entry point
	cmd.Execute()
}
