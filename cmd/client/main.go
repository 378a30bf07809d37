package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	flag "github.com/spf13/pflag"

	"github.com/tuannm99/novacsv/internal/sql/executor"
	"github.com/tuannm99/novacsv/sqlclient"
)

const (
	prompt     = "novacsv> "
	contPrompt = "...> "
)

// statementComplete reports whether buf ends a statement: a ';' outside
// single quotes. Doubled quotes inside a literal toggle twice and cancel out.
func statementComplete(buf string) bool {
	inQuote := false
	for _, r := range buf {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			return true
		}
	}
	return false
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func printResult(w io.Writer, res *executor.Result) {
	cols := res.Columns

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range res.Rows {
		for i := range cols {
			if i < len(row) {
				widths[i] = max(widths[i], len(cell(row[i])))
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, padRight(values[i], widths[i]))
		}
		fmt.Fprintln(w)
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)

	for _, row := range res.Rows {
		out := make([]string, len(cols))
		for i := range cols {
			out[i] = "NULL"
			if i < len(row) {
				out[i] = cell(row[i])
			}
		}
		printRow(out)
	}
	fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func describe(ctx context.Context, cli *sqlclient.Client, table string) error {
	d, err := cli.Describe(ctx, table)
	if err != nil {
		return err
	}
	fmt.Printf("table %s (format %s, %d rows)\n", d.Table.Name, d.Table.RowFormat, d.Table.Rows)
	for _, c := range d.Table.Schema.Cols {
		var flags []string
		if c.IsKey {
			flags = append(flags, "key")
		}
		if c.IsIndexed {
			flags = append(flags, "indexed")
		}
		if c.IsUnique {
			flags = append(flags, "unique")
		}
		fmt.Printf("  %-20s %-8s %s\n", c.Name, c.Type, strings.Join(flags, ","))
	}
	for _, ix := range d.Indexes {
		fmt.Printf("  index %s.%s pages=%d built=%t\n", ix.Table, ix.Column, ix.PageCount, ix.Built)
	}
	return nil
}

func metaCommand(ctx context.Context, cli *sqlclient.Client, h *History, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "\\q", "quit", "exit":
		return true
	case "\\help":
		fmt.Println(`meta commands:
  \q | quit | exit       quit
  \dt                    list tables
  \d <table>             describe a table and its indexes
  \history               print history
  \help                  show help

sql:
  end a statement with ';'
  multiline is supported (the shell waits for ';')`)
	case "\\dt":
		tables, err := cli.Tables(ctx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, t := range tables {
			fmt.Println(t)
		}
	case "\\d":
		if len(fields) != 2 {
			fmt.Println("usage: \\d <table>")
			break
		}
		if err := describe(ctx, cli, fields[1]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "\\history":
		h.Print(os.Stdout, 50)
	default:
		fmt.Printf("unknown command: %s\n", line)
	}
	return false
}

func main() {
	var (
		addr       = flag.String("addr", "http://127.0.0.1:8080", "server base URL")
		timeout    = flag.Duration("timeout", 10*time.Second, "request timeout")
		histPath   = flag.String("history", defaultHistoryPath(), "history file path")
		histMax    = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShotSQL = flag.StringP("command", "c", "", "execute one statement and exit")
	)
	flag.Parse()

	ctx := context.Background()
	cli := sqlclient.New(*addr, *timeout)
	if err := cli.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*oneShotSQL) != "" {
		res, err := cli.Exec(*oneShotSQL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printResult(os.Stdout, res)
		return
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.Lines() {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder

	fmt.Printf("connected to %s\n", cli.URL())
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			// Ctrl+C clears the pending statement
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			if metaCommand(ctx, cli, h, line) {
				return
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !statementComplete(buf.String()) {
			rl.SetPrompt(contPrompt)
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt(prompt)

		_ = h.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		res, err := cli.Exec(stmt)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		printResult(os.Stdout, res)
	}
}
