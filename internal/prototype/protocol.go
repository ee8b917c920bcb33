package prototype

import "fmt"

// Command is a request understood by the prototype's BIOS.
type Command int

const (
	ShowHelp Command = iota
	Program
	Run
)

// Sequence is a marker the BIOS prints to signal a protocol milestone.
type Sequence int

const (
	HelpScreen Sequence = iota
	Programming
	UploadComplete
)

var commands = map[Command]struct {
	name  string
	bytes string
}{
	ShowHelp: {"ShowHelp", "*h"},
	Program:  {"Program", "*p"},
	Run:      {"Run", "$"},
}

var sequences = map[Sequence]struct {
	name  string
	bytes string
}{
	HelpScreen:     {"HelpScreen", "Openrisc based virtual Prototype.\n"},
	Programming:    {"Programming", "Setting prog. mode\n"},
	UploadComplete: {"UploadComplete", "Upload done\n"},
}

// Bytes returns the bytes transmitted for c, or nil if c is unknown.
func (c Command) Bytes() []byte {
	if cmd, ok := commands[c]; ok {
		return []byte(cmd.bytes)
	}
	return nil
}

func (c Command) String() string {
	if cmd, ok := commands[c]; ok {
		return cmd.name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Bytes returns the marker for s, or nil if s is unknown.
func (s Sequence) Bytes() []byte {
	if seq, ok := sequences[s]; ok {
		return []byte(seq.bytes)
	}
	return nil
}

func (s Sequence) String() string {
	if seq, ok := sequences[s]; ok {
		return seq.name
	}
	return fmt.Sprintf("Sequence(%d)", int(s))
}
