/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/gmofishsauce/ss32/cmd"

func main() {
	cmd.Execute()
}
