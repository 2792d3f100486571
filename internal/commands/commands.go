package commands

import (
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies a command.
type Kind string

const (
	CmdStart           Kind = "start"
	CmdStop            Kind = "stop"
	CmdSetDeposit      Kind = "setdeposit"
	CmdSetRefill       Kind = "setrefill"
	CmdSetBound1       Kind = "setbound1"
	CmdSetBound2       Kind = "setbound2"
	CmdAddWhitelist    Kind = "addwhitelist"
	CmdRemoveWhitelist Kind = "removewhitelist"
	CmdWhitelist       Kind = "whitelist"
	CmdStatus          Kind = "status"
	CmdStats           Kind = "stats"
	CmdHelp            Kind = "help"
	CmdQuit            Kind = "quit"
	CmdUnknown         Kind = ""
)

// Kinds lists every known command in help order.
var Kinds = []Kind{
	CmdStart, CmdStop, CmdSetDeposit, CmdSetRefill, CmdSetBound1, CmdSetBound2,
	CmdAddWhitelist, CmdRemoveWhitelist, CmdWhitelist, CmdStatus, CmdStats, CmdHelp, CmdQuit,
}

// Command is a parsed command line.
type Command struct {
	Kind Kind
	Name string // keyword as typed, case-folded
	Args []string
}

// Arg returns the first argument or "".
func (c Command) Arg() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// NeedsPosition reports whether the command reads the issuer's position.
func (k Kind) NeedsPosition() bool {
	switch k {
	case CmdSetDeposit, CmdSetRefill, CmdSetBound1, CmdSetBound2:
		return true
	}
	return false
}

// Parse splits a line on whitespace. The keyword is case-insensitive;
// arguments keep their case.
func Parse(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{Kind: CmdUnknown}
	}
	name := cases.Fold().String(fields[0])
	cmd := Command{Kind: CmdUnknown, Name: name, Args: fields[1:]}
	for _, k := range Kinds {
		if string(k) == name {
			cmd.Kind = k
			break
		}
	}
	return cmd
}
