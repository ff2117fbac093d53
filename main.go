/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/jeluard/otel-ui-backend/cmd"

func main() {
	cmd.Execute()
}
