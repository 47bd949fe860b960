package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	flag "github.com/spf13/pflag"

	"github.com/wotori/solana-donations/config"
	"github.com/wotori/solana-donations/sdk"
)

const usage = `donor-cli talks to a donord node over JSON-RPC.

Usage:
  donor-cli [global flags] <command> [command flags]

Commands:
  config                                   show the registry config
  donor <wallet>                           show the donor record of a wallet
  donor-id <id>                            show a donor by id
  leaderboard                              show the ranked top donors
  derive <wallet>                          derive the record addresses of a wallet
  balance <address>                        show a lamport balance
  airdrop <address> <lamports>             request lamports from the dev faucet
  init --admin A --treasury T              initialize the registry
  donate --wallet W --amount N [--nickname S]
  profile --wallet W [--nickname S] [--description S]
  set-treasury --admin A --treasury T
  set-paused --admin A --paused=true|false
  set-admin --admin A --new-admin B
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if name, ok := sdk.RegistryErrorName(err); ok {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", name, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("donor-cli", flag.ContinueOnError)
	rpcURL := global.String("rpc", "http://127.0.0.1:8899", "donord JSON-RPC endpoint")
	token := global.String("token", "", "bearer token for write methods (or set "+config.EnvRPCToken+")")
	timeout := global.Duration("timeout", 15*time.Second, "request timeout")
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("command required")
	}
	if *token == "" {
		*token = os.Getenv(config.EnvRPCToken)
	}

	client := sdk.NewClient(*rpcURL, sdk.WithAuthToken(*token))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := dispatch(ctx, client, rest[0], rest[1:])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func dispatch(ctx context.Context, client *sdk.Client, command string, args []string) (interface{}, error) {
	switch command {
	case "config":
		return client.Config(ctx)
	case "donor":
		wallet, err := positionalKey(args, 0, "wallet")
		if err != nil {
			return nil, err
		}
		return client.Donor(ctx, wallet)
	case "donor-id":
		if len(args) < 1 {
			return nil, errors.New("donor id required")
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid donor id: %w", err)
		}
		return client.DonorByID(ctx, id)
	case "leaderboard":
		return client.Leaderboard(ctx)
	case "derive":
		wallet, err := positionalKey(args, 0, "wallet")
		if err != nil {
			return nil, err
		}
		donorID, addrs, err := client.DeriveAddresses(ctx, wallet)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"donorId": donorID, "addresses": addrs}, nil
	case "balance":
		addr, err := positionalKey(args, 0, "address")
		if err != nil {
			return nil, err
		}
		lamports, err := client.Balance(ctx, addr)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"address": addr.String(), "lamports": strconv.FormatUint(lamports, 10)}, nil
	case "airdrop":
		addr, err := positionalKey(args, 0, "address")
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, errors.New("lamports required")
		}
		lamports, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lamports: %w", err)
		}
		return client.Airdrop(ctx, addr, lamports)
	case "init":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		admin := fs.String("admin", "", "admin wallet")
		treasury := fs.String("treasury", "", "treasury wallet")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"admin": *admin, "treasury": *treasury})
		if err != nil {
			return nil, err
		}
		return client.InitializeConfig(ctx, keys["admin"], keys["treasury"])
	case "donate":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		wallet := fs.String("wallet", "", "donor wallet")
		amount := fs.Uint64("amount", 0, "lamports to donate")
		nickname := fs.String("nickname", "", "nickname to record")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"wallet": *wallet})
		if err != nil {
			return nil, err
		}
		return client.Donate(ctx, keys["wallet"], *amount, optionalFlag(fs, "nickname", *nickname))
	case "profile":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		wallet := fs.String("wallet", "", "donor wallet")
		nickname := fs.String("nickname", "", "new nickname")
		description := fs.String("description", "", "new description")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"wallet": *wallet})
		if err != nil {
			return nil, err
		}
		return client.UpdateProfile(ctx, keys["wallet"],
			optionalFlag(fs, "nickname", *nickname),
			optionalFlag(fs, "description", *description))
	case "set-treasury":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		admin := fs.String("admin", "", "current admin")
		treasury := fs.String("treasury", "", "new treasury")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"admin": *admin, "treasury": *treasury})
		if err != nil {
			return nil, err
		}
		return client.SetTreasury(ctx, keys["admin"], keys["treasury"])
	case "set-paused":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		admin := fs.String("admin", "", "current admin")
		paused := fs.Bool("paused", true, "pause or resume donations")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"admin": *admin})
		if err != nil {
			return nil, err
		}
		return client.SetPaused(ctx, keys["admin"], *paused)
	case "set-admin":
		fs := flag.NewFlagSet(command, flag.ContinueOnError)
		admin := fs.String("admin", "", "current admin")
		newAdmin := fs.String("new-admin", "", "new admin")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		keys, err := parseKeys(map[string]string{"admin": *admin, "new-admin": *newAdmin})
		if err != nil {
			return nil, err
		}
		return client.SetAdmin(ctx, keys["admin"], keys["new-admin"])
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func positionalKey(args []string, idx int, name string) (solana.PublicKey, error) {
	if len(args) <= idx {
		return solana.PublicKey{}, fmt.Errorf("%s required", name)
	}
	key, err := solana.PublicKeyFromBase58(args[idx])
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return key, nil
}

func parseKeys(raw map[string]string) (map[string]solana.PublicKey, error) {
	out := make(map[string]solana.PublicKey, len(raw))
	for name, value := range raw {
		if value == "" {
			return nil, fmt.Errorf("--%s required", name)
		}
		key, err := solana.PublicKeyFromBase58(value)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", name, err)
		}
		out[name] = key
	}
	return out, nil
}

// optionalFlag distinguishes an unset string flag from one set to "".
func optionalFlag(fs *flag.FlagSet, name, value string) *string {
	if !fs.Changed(name) {
		return nil
	}
	return &value
}
