package main

import "github.com/dipakchaulagain/NetAuthVPN/bootstrap"

func main() {
	bootstrap.Run()
}
