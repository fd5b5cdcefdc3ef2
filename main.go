package main

import "github.com/andresmejia3/redactor/cmd"

func main() {
	cmd.Execute()
}
