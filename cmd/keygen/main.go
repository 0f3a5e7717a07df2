// Command keygen prints a fresh master key suitable for
// FILEVAULT_ENCRYPTION_KEY.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"golang.org/x/term"
)

var isTerminal = term.IsTerminal

func run(w io.Writer, interactive bool) error {
	key, err := common.MakeRandHexString(cryptox.KeySize)
	if err != nil {
		return err
	}
	if interactive {
		fmt.Fprintln(w, "Store this key safely. Files sealed with it cannot be read without it.")
		fmt.Fprintf(w, "FILEVAULT_ENCRYPTION_KEY=%s\n", key)
		return nil
	}
	_, err = fmt.Fprintln(w, key)
	return err
}

func main() {
	if err := run(os.Stdout, isTerminal(int(os.Stdout.Fd()))); err != nil {
		log.Fatalf("generate key: %v", err)
	}
}
