package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/chzyer/readline"
)

type ParserData struct {
	parser *kong.Kong
	cli    *CLI
}

type Globals struct {
	Config       string     `help:"Location of client config files" env:"GOSSF_HOME" type:"path"`
	ConfigFile   string     `kong:"-"`
	Data         ConfigData `kong:"-"`
	Output       string     `short:"o" help:"To redirect output to a file" type:"path"`
	AppendOutput bool       `short:"a" default:"false" help:"When true, output to file (--output) will be appended"`
}

type CLI struct {
	Globals
	Add      AddCmd      `cmd:"" help:"Define a new server or receiver subscription"`
	Create   CreateCmd   `cmd:"" help:"Create an issuer KEY or STREAM"`
	Delete   DeleteCmd   `cmd:"" help:"Delete a stream or receiver"`
	Select   SelectCmd   `cmd:"" help:"Select a defined server to perform operations against"`
	Get      GetCmd      `cmd:"" help:"Get information from SSF servers"`
	Set      SetCmd      `cmd:"" help:"Set stream status on a server"`
	Generate GenerateCmd `cmd:"" help:"Generate an event for testing"`
	Poll     PollCmd     `cmd:"" help:"Poll a stream for events"`
	Verify   VerifyCmd   `cmd:"" help:"Request stream verification"`
	Show     ShowCmd     `cmd:"" help:"Show locally configured information"`
	Exit     ExitCmd     `cmd:"" help:"Exit the shell"`
	Help     HelpCmd     `cmd:"" help:"Show help on a command"`
}

type OutputWriter struct {
	output  *os.File
	isReady bool
	err     error
}

/*
GetOutputWriter returns an output writer if one was requested or nil. If one
was requested and the output cannot be opened an error is returned.
*/
func (cli *CLI) GetOutputWriter() *OutputWriter {
	if cli.Output == "" {
		return &OutputWriter{isReady: false}
	}

	flags := os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	if cli.AppendOutput {
		flags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	}
	file, err := os.OpenFile(cli.Output, flags, 0644)
	if err != nil {
		fmt.Println(err.Error())
		return &OutputWriter{isReady: false, err: err}
	}
	return &OutputWriter{output: file, isReady: true}
}

func (o *OutputWriter) WriteString(msg string, andClose bool) {
	if msg != "" && o.isReady {
		_, _ = o.output.WriteString(msg)
		_ = o.output.Sync()
	}
	if andClose {
		o.Close()
	}
}

func (o *OutputWriter) WriteBytes(msgBytes []byte, andClose bool) {
	if len(msgBytes) != 0 && o.isReady {
		_, _ = o.output.Write(msgBytes)
		_ = o.output.Sync()
	}
	if andClose {
		o.Close()
	}
}

func (o *OutputWriter) Close() {
	if o.isReady {
		o.isReady = false
		_ = o.output.Close()
	}
}

func initParser(cli *CLI) (*ParserData, error) {
	if cli == nil {
		cli = &CLI{}
	}

	cli.Data = ConfigData{
		Servers: map[string]SsfServer{},
	}
	parser, err := kong.New(cli,
		kong.Name("goSsf"),
		kong.Description("goSharedSignals client administration tool"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:      true,
			Summary:      true,
			Tree:         true,
			NoAppSummary: false,
		}),
		kong.UsageOnError(),
		kong.Writers(os.Stdout, os.Stdout),
		kong.NoDefaultHelp(),
		kong.Bind(&cli.Globals),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return nil, err
	}
	td := ParserData{
		parser: parser,
		cli:    cli,
	}
	if err := cli.Data.checkConfigPath(&cli.Globals); err != nil {
		return &td, err
	}
	fmt.Println("Loading existing configuration...")
	_ = cli.Data.Load(&cli.Globals)

	return &td, nil
}

func main() {
	console, err := readline.NewEx(&readline.Config{
		Prompt:                 "goSsf> ",
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		panic(err)
	}
	defer func(console *readline.Instance) {
		_ = console.Close()
	}(console)

	td, err := initParser(&CLI{})
	if err != nil {
		fmt.Println(err.Error())
	}

	oneCommand := false
	var initialArgs []string
	if len(os.Args) > 1 {
		initialArgs = os.Args[1:]
		oneCommand = true
	}

	for {
		var args []string
		if len(initialArgs) > 0 {
			args = initialArgs
			_ = console.SaveHistory(strings.Join(initialArgs, " "))
			initialArgs = []string{}
		} else {
			line, err := console.Readline()
			if err != nil {
				return
			}
			_ = console.SaveHistory(line)
			args = strings.Split(line, " ")
		}

		ctx, err := td.parser.Parse(args)
		if err != nil {
			td.parser.Errorf("%s", err.Error())
			if parseErr, ok := err.(*kong.ParseError); ok {
				_ = parseErr.Context.PrintUsage(false)
			}
			continue
		}

		err = ctx.Run(&td.cli.Globals)
		if err != nil {
			td.parser.Errorf("%s", err)
			continue
		}
		if oneCommand {
			return
		}
	}
}
