// Command store-client pokes the remote backend directly, for checking the
// wire format and the ranking against live data.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/garnizeh/recboard/internal/board"
	"github.com/garnizeh/recboard/pkg/backend"
)

const uri = "http://localhost:3000"

func main() {
	baseURL := flag.String("base-url", uri, "backend base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: store-client [flags] health | board <queryID> | vote <recID> <email> | best <recID> <queryID>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := backend.DefaultConfig()
	cfg.BaseURL = *baseURL
	client, err := backend.NewDefaultClient(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, client *backend.Client, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}
	switch cmd, rest := args[0], args[1:]; {
	case cmd == "health":
		if err := client.Health(ctx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	case cmd == "board" && len(rest) == 1:
		b, err := board.Load(ctx, client, rest[0])
		if err != nil {
			return err
		}
		defer b.Close()
		return printJSON(b.Snapshot())
	case cmd == "vote" && len(rest) == 2:
		res, err := client.VoteHelpful(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		return printJSON(res)
	case cmd == "best" && len(rest) == 2:
		res, err := client.MarkBest(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		return printJSON(res)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
