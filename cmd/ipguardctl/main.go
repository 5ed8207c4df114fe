package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/gateways/adminapi"
)

const usage = `Usage: ipguardctl [-addr host:port] [-token t] <command> [args]

Commands:
  whitelist <pattern> [note]     add a pattern to the whitelist
  blacklist <pattern> [note]     add a pattern to the blacklist
  remove [-list L] <pattern>     remove a pattern (from both lists by default)
  clear <list>                   remove every entry of a list
  report [-json] <list>          print the entries of a list
  import <list> <file|->         bulk add patterns from a text or .json file
  flush                          drop the membership cache
  check <ip>                     print the guard verdict for an address
  enforce [on|off]               show or switch whitelist enforcement
  stats                          print repository statistics
`

const defaultAddr = "127.0.0.1:8081"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli carries the parsed global flags and I/O streams of one invocation.
type cli struct {
	client *adminapi.Client
	stdin  io.Reader
	stdout io.Writer
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ipguardctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	addr := fs.String("addr", envOr("IPGUARD_ADMIN_ADDR", defaultAddr), "admin API address")
	token := fs.String("token", os.Getenv("IPGUARD_ADMIN_TOKEN"), "admin API bearer token")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	client, err := adminapi.NewClient(*addr, *token, nil)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := &cli{client: client, stdin: stdin, stdout: stdout}
	if err := c.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "error: %v\n\n%s", err, usage)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "whitelist":
		return c.add(ctx, domain.Whitelist, args)
	case "blacklist":
		return c.add(ctx, domain.Blacklist, args)
	case "remove":
		return c.remove(ctx, args)
	case "clear":
		return c.clear(ctx, args)
	case "report":
		return c.report(ctx, args)
	case "import":
		return c.importFile(ctx, args)
	case "flush":
		if err := c.client.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, "cache flushed")
		return nil
	case "check":
		return c.check(ctx, args)
	case "enforce":
		return c.enforce(ctx, args)
	case "stats":
		stats, err := c.client.Stats(ctx)
		if err != nil {
			return err
		}
		return writeJSON(c.stdout, stats)
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
}

func (c *cli) add(ctx context.Context, list domain.ListKind, args []string) error {
	if len(args) == 0 {
		return usageError(list.String() + " requires a pattern")
	}
	note := strings.Join(args[1:], " ")
	resp, err := c.client.Add(ctx, list, args[0], note)
	if err != nil {
		return err
	}
	if resp.Created {
		fmt.Fprintf(c.stdout, "added %s to %s\n", resp.Entry.Pattern, list)
	} else {
		fmt.Fprintf(c.stdout, "%s already in %s\n", resp.Entry.Pattern, list)
	}
	return nil
}

func (c *cli) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	listName := fs.String("list", "", "whitelist or blacklist; both when empty")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 1 {
		return usageError("remove requires exactly one pattern")
	}
	lists := domain.ListKinds
	if *listName != "" {
		l, err := domain.ParseListKind(*listName)
		if err != nil {
			return usageError(err.Error())
		}
		lists = []domain.ListKind{l}
	}
	pattern := fs.Arg(0)
	for _, l := range lists {
		removed, err := c.client.Remove(ctx, l, pattern)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(c.stdout, "removed %s from %s\n", pattern, l)
		} else {
			fmt.Fprintf(c.stdout, "%s not in %s\n", pattern, l)
		}
	}
	return nil
}

func (c *cli) clear(ctx context.Context, args []string) error {
	list, err := listArg("clear", args)
	if err != nil {
		return err
	}
	if err := c.client.Clear(ctx, list); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "cleared %s\n", list)
	return nil
}

func (c *cli) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	list, err := listArg("report", fs.Args())
	if err != nil {
		return err
	}
	entries, err := c.client.Report(ctx, list)
	if err != nil {
		return err
	}
	if *asJSON {
		if entries == nil {
			entries = []domain.Entry{}
		}
		return writeJSON(c.stdout, entries)
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tADDED\tSOURCE\tNOTE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Pattern, e.AddedAt.Format(time.RFC3339), e.Source, e.Note)
	}
	return tw.Flush()
}

func (c *cli) importFile(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("import requires a list and a file")
	}
	list, err := domain.ParseListKind(args[0])
	if err != nil {
		return usageError(err.Error())
	}

	contentType := "text/plain"
	var r io.Reader
	if args[1] == "-" {
		r = c.stdin
	} else {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
		if strings.EqualFold(filepath.Ext(args[1]), ".json") {
			contentType = "application/json"
		}
	}

	res, err := c.client.Import(ctx, list, contentType, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "imported into %s: %d created, %d existing\n", list, res.Created, res.Existing)
	return nil
}

func (c *cli) check(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("check requires one address")
	}
	d, err := c.client.Check(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", d.Address, d.Verdict)
	return nil
}

func (c *cli) enforce(ctx context.Context, args []string) error {
	switch {
	case len(args) == 0:
	case len(args) == 1 && (args[0] == "on" || args[0] == "off"):
		if err := c.client.SetEnforcement(ctx, args[0] == "on"); err != nil {
			return err
		}
	default:
		return usageError("enforce takes on or off")
	}
	on, err := c.client.Enforcement(ctx)
	if err != nil {
		return err
	}
	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(c.stdout, "whitelist enforcement %s\n", state)
	return nil
}

func listArg(cmd string, args []string) (domain.ListKind, error) {
	if len(args) != 1 {
		return 0, usageError(cmd + " requires a list")
	}
	l, err := domain.ParseListKind(args[0])
	if err != nil {
		return 0, usageError(err.Error())
	}
	return l, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
