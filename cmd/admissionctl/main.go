// Command admissionctl is the operator tool for the admission service.
//
//	admissionctl hash-pin --pin 4821
//	admissionctl register-device --device-id gate-a-01 --gate 3 --pin 4821
//	admissionctl mint-token --role CHECKOUT --subject checkout --ttl-min 60
//	admissionctl inspect 'tixadm|type:ticket|id:42|exp:...|nonce:...|sig:...'
//
// Secrets default to JWT_SECRET and ADMISSION_SECRET from the environment
// (or .env); database commands read the same DB_* variables as the server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "hash-pin":
		return hashPIN(rest, out)
	case "register-device":
		return registerDevice(rest, out)
	case "mint-token":
		return mintToken(rest, out)
	case "inspect":
		return inspect(rest, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `admissionctl manages gate devices, access tokens and admission codes.

Usage:
  admissionctl <command> [flags]

Commands:
  hash-pin         print the bcrypt hash of a device PIN
  register-device  store a gate device and its PIN hash
  mint-token       sign a GATE or CHECKOUT access token
  inspect          verify an admission code and print its claims

Run "admissionctl <command> --help" for command flags.
`)
}
