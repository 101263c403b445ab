// Package txerror extracts structured information from Sui transaction
// execution failures and maps Move abort codes to readable messages.
package txerror

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"suitcase/internal/address"
)

var (
	moveAbortRe   = regexp.MustCompile(`MoveAbort\(\s*MoveLocation\s*\{(.*)\}\s*,\s*(\d+)\s*\)`)
	addressRe     = regexp.MustCompile(`address:\s*(?:0x)?([0-9a-fA-F]+)`)
	moduleRe      = regexp.MustCompile(`name:\s*Identifier\("([^"]*)"\)`)
	functionRe    = regexp.MustCompile(`function:\s*(\d+)`)
	instructionRe = regexp.MustCompile(`instruction:\s*(\d+)`)
	funcNameRe    = regexp.MustCompile(`function_name:\s*Some\("([^"]*)"\)`)
	commandRe     = regexp.MustCompile(`in command (\d+)`)
)

// MoveAbort is a parsed Move abort
type MoveAbort struct {
	// Package is the normalized address of the package that aborted
	Package string
	Module  string
	// Function is the function name if the node reported it
	Function      string
	FunctionIndex int
	Instruction   int
	Code          uint64
	// Command is the index of the transaction command, -1 if not reported
	Command int
}

// Location renders the abort location as package::module::function
func (a *MoveAbort) Location() string {
	loc := address.Shorten(a.Package, 4, 4) + "::" + a.Module
	if a.Function != "" {
		loc += "::" + a.Function
	}
	return loc
}

// String implements fmt.Stringer
func (a *MoveAbort) String() string {
	s := fmt.Sprintf("abort %d in %s", a.Code, a.Location())
	if a.Command >= 0 {
		s += fmt.Sprintf(" (command %d)", a.Command)
	}
	return s
}

// Parse extracts a MoveAbort from an execution failure message.
// Returns false if msg does not contain one.
func Parse(msg string) (*MoveAbort, bool) {
	idx := moveAbortRe.FindStringSubmatchIndex(msg)
	if idx == nil {
		return nil, false
	}
	location := msg[idx[2]:idx[3]]

	code, err := strconv.ParseUint(msg[idx[4]:idx[5]], 10, 64)
	if err != nil {
		return nil, false
	}

	abort := &MoveAbort{
		Code:          code,
		FunctionIndex: -1,
		Instruction:   -1,
		Command:       -1,
	}

	if sub := addressRe.FindStringSubmatch(location); sub != nil {
		if pkg, err := address.Normalize(sub[1]); err == nil {
			abort.Package = pkg
		}
	}
	if sub := moduleRe.FindStringSubmatch(location); sub != nil {
		abort.Module = sub[1]
	}
	if sub := funcNameRe.FindStringSubmatch(location); sub != nil {
		abort.Function = sub[1]
	}
	abort.FunctionIndex = atoiOr(functionRe.FindStringSubmatch(location), -1)
	abort.Instruction = atoiOr(instructionRe.FindStringSubmatch(location), -1)
	abort.Command = atoiOr(commandRe.FindStringSubmatch(msg[idx[1]:]), -1)

	return abort, true
}

func atoiOr(sub []string, fallback int) int {
	if sub == nil {
		return fallback
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return fallback
	}
	return n
}

type registryKey struct {
	module string
	code   uint64
}

// Registry maps abort codes of Move modules to readable messages.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	messages map[registryKey]string
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{messages: make(map[registryKey]string)}
}

// Register sets the message for code raised by module
func (r *Registry) Register(module string, code uint64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[registryKey{module: module, code: code}] = message
}

// RegisterModule sets the messages for several codes of module at once
func (r *Registry) RegisterModule(module string, messages map[uint64]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, msg := range messages {
		r.messages[registryKey{module: module, code: code}] = msg
	}
}

// Lookup returns the message registered for code raised by module
func (r *Registry) Lookup(module string, code uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[registryKey{module: module, code: code}]
	return msg, ok
}

// Describe turns an execution failure message into a readable one.
// Messages without a known Move abort are returned trimmed but unchanged.
func (r *Registry) Describe(msg string) string {
	abort, ok := Parse(msg)
	if !ok {
		return strings.TrimSpace(msg)
	}

	text, ok := r.Lookup(abort.Module, abort.Code)
	if !ok {
		return abort.String()
	}
	return fmt.Sprintf("%s: %s", abort.Location(), text)
}

// NewFrameworkRegistry returns a Registry preloaded with the abort codes of
// the Sui framework modules that most often surface in balance operations
func NewFrameworkRegistry() *Registry {
	r := NewRegistry()
	r.RegisterModule("balance", map[uint64]string{
		0: "balance is not zero",
		1: "balance overflow",
		2: "insufficient balance",
	})
	r.RegisterModule("coin", map[uint64]string{
		0: "bad one-time witness",
		1: "invalid argument",
		2: "insufficient coin value",
	})
	return r
}
