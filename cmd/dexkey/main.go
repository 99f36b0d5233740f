// Command dexkey manages the owner key. It encrypts a raw private key into
// the file format read by owner_encrypted_key_path and signs the request
// bodies accepted by the /api/admin endpoints.
//
//	dexkey encrypt -out owner.json            # key from DEXENGINE_OWNER_PRIVATE_KEY
//	dexkey sign -config config.toml -action credit -target 0x.. -token 0x.. -amount 100 -nonce 1
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/config"
	"github.com/alanyoungcy/dexengine/internal/crypto"
	"github.com/alanyoungcy/dexengine/internal/num"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dexkey <encrypt|sign> [flags]")
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "encrypt":
		err = encrypt(os.Args[2:])
	case "sign":
		err = sign(os.Args[2:])
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dexkey: %v\n", err)
		os.Exit(1)
	}
}

func encrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	out := fs.String("out", "owner.json", "output file")
	password := fs.String("password", os.Getenv("DEXENGINE_OWNER_KEY_PASSWORD"), "encryption password")
	_ = fs.Parse(args)

	key := os.Getenv("DEXENGINE_OWNER_PRIVATE_KEY")
	if key == "" {
		return errors.New("DEXENGINE_OWNER_PRIVATE_KEY is not set")
	}
	blob, err := crypto.EncryptKey(key, *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	owner, err := crypto.KeyFileAddress(blob)
	if err != nil {
		return err
	}
	fmt.Printf("encrypted key for %s written to %s\n", owner.Hex(), *out)
	return nil
}

func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	action := fs.String("action", "", "assign_oracle, assign_owner, assign_fee_collector, renounce or credit")
	target := fs.String("target", "", "target address")
	token := fs.String("token", "", "token address (credit)")
	amount := fs.String("amount", "", "native amount (credit)")
	nonce := fs.Uint64("nonce", uint64(time.Now().UnixNano()), "replay nonce")
	ttl := fs.Duration("ttl", 5*time.Minute, "signature lifetime")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	signer, err := crypto.LoadSigner(cfg.Engine.OwnerKey(), cfg.Engine.ChainID)
	if err != nil {
		return err
	}

	a := crypto.AdminAction{
		Action:   *action,
		Nonce:    *nonce,
		Deadline: time.Now().Add(*ttl).Unix(),
	}
	if *target != "" {
		a.Target = common.HexToAddress(*target)
	}
	if *token != "" {
		a.Token = common.HexToAddress(*token)
	}
	if *amount != "" {
		if a.Amount, err = num.UintFromString(*amount); err != nil {
			return err
		}
	}
	sig, err := signer.SignAdminAction(a)
	if err != nil {
		return err
	}

	body := map[string]any{
		"nonce":     a.Nonce,
		"deadline":  a.Deadline,
		"signature": sig,
	}
	if *target != "" {
		body["target"] = a.Target.Hex()
	}
	if *token != "" {
		body["token"] = a.Token.Hex()
	}
	if a.Amount != nil {
		body["amount"] = a.Amount.String()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}
