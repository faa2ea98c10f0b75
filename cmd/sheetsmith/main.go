package main

import (
	"context"

	"github.com/JonMunkholm/sheetsmith/internal/cli"
)

func main() {
	cli.Execute(context.Background())
}
