/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/bookhaven/apiserver/cmd"

func main() {
	cmd.Execute()
}
