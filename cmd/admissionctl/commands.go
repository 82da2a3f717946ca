package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-admission/internal/config"
	"github.com/iliyamo/ticket-admission/internal/database"
	"github.com/iliyamo/ticket-admission/internal/repository"
	"github.com/iliyamo/ticket-admission/internal/token"
	"github.com/iliyamo/ticket-admission/internal/utils"
)

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// parse reports whether --help was requested.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", errUsage, err)
	}
	return false, nil
}

func hashPIN(args []string, out io.Writer) error {
	fs := newFlagSet("hash-pin", out)
	pin := fs.String("pin", "", "device PIN")
	cost := fs.Int("cost", 12, "bcrypt cost")
	if help, err := parse(fs, args); help || err != nil {
		return err
	}
	if *pin == "" {
		return fmt.Errorf("%w: --pin is required", errUsage)
	}
	h, err := utils.HashPassword(*pin, *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, h)
	return nil
}

func registerDevice(args []string, out io.Writer) error {
	fs := newFlagSet("register-device", out)
	deviceID := fs.String("device-id", "", "identifier printed on the scanner")
	gate := fs.Uint64("gate", 0, "gate the device is installed at")
	pin := fs.String("pin", "", "device PIN")
	if help, err := parse(fs, args); help || err != nil {
		return err
	}
	if strings.TrimSpace(*deviceID) == "" || *gate == 0 || *pin == "" {
		return fmt.Errorf("%w: --device-id, --gate and --pin are required", errUsage)
	}

	cfg := config.Load()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	id, err := repository.NewGateDeviceRepo(db).Create(ctx, *deviceID, *gate, *pin, cfg.BcryptCost)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered device %s (id %d) at gate %d\n", strings.TrimSpace(*deviceID), id, *gate)
	return nil
}

func mintToken(args []string, out io.Writer) error {
	fs := newFlagSet("mint-token", out)
	role := fs.String("role", utils.RoleCheckout, "GATE or CHECKOUT")
	subject := fs.String("subject", "checkout", "token subject (device id or service name)")
	gate := fs.Uint64("gate", 0, "gate claim for GATE tokens")
	ttl := fs.Int("ttl-min", 60, "lifetime in minutes")
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	if help, err := parse(fs, args); help || err != nil {
		return err
	}
	r := strings.ToUpper(*role)
	if r != utils.RoleGate && r != utils.RoleCheckout {
		return fmt.Errorf("%w: unknown role %q", errUsage, *role)
	}
	if r == utils.RoleGate && *gate == 0 {
		return fmt.Errorf("%w: GATE tokens need --gate", errUsage)
	}
	at, err := utils.NewAccessToken(*secret, *subject, r, *gate, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, at.Token)
	return nil
}

type inspectOut struct {
	Kind      token.Kind `json:"kind"`
	SubjectID uint64     `json:"subject_id"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func inspect(args []string, out io.Writer) error {
	fs := newFlagSet("inspect", out)
	secret := fs.String("secret", os.Getenv("ADMISSION_SECRET"), "admission secret (default $ADMISSION_SECRET)")
	namespace := fs.String("namespace", envOr("ADMISSION_NAMESPACE", "tixadm"), "code namespace")
	if help, err := parse(fs, args); help || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: inspect takes exactly one code", errUsage)
	}
	codec, err := token.NewCodec(token.Options{Namespace: *namespace, Secret: []byte(*secret)})
	if err != nil {
		return err
	}
	claims, err := codec.Verify(fs.Arg(0))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(inspectOut{Kind: claims.Kind, SubjectID: claims.SubjectID, ExpiresAt: claims.ExpiresAt})
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
