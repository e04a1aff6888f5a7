// Command beetlebase はクワガタ・カブトムシの飼育記録APIとジョブワーカーを起動する。
//
//	beetlebase [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/beetlebase/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
