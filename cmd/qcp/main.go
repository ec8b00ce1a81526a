// cmd/qcp/main.go
package main

import "qcpsync/cmd/qcp/cmd"

func main() {
	cmd.Execute()
}
