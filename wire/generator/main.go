package main

import (
	"github.com/outofforest/proton"

	"github.com/outofforest/relay/wire"
)

//go:generate go run .
func main() {
	proton.Generate("../types.proton.go",
		proton.Message[wire.Envelope](),
		proton.Message[wire.Error](),
		proton.Message[wire.Ping](),
		proton.Message[wire.Ack](),
		proton.Message[wire.Query](),
		proton.Message[wire.QueryResult](),
	)
}
