package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// InputKind enumerates the operator prompts a bot may raise
type InputKind int

const (
	InputLogin InputKind = iota
	InputPassword
	InputAuthCode
	InputTwoFactorCode
	InputParentalPIN
	InputSMSCode
	InputPhoneNumber
	InputDeviceID
)

var inputKindLabels = map[InputKind]string{
	InputLogin:         "login",
	InputPassword:      "password",
	InputAuthCode:      "email guard code",
	InputTwoFactorCode: "two-factor code",
	InputParentalPIN:   "parental PIN",
	InputSMSCode:       "SMS code",
	InputPhoneNumber:   "phone number",
	InputDeviceID:      "device id",
}

// Prompter collects operator input from the console. A single process-wide
// lock serializes prompts so concurrent bots never interleave their
// questions.
type Prompter struct {
	mutex sync.Mutex
	in    *bufio.Reader
	out   io.Writer
}

// NewPrompter creates a console-backed prompter
func NewPrompter() *Prompter {
	return &Prompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

// Request asks the operator for one input on behalf of the named bot and
// returns the trimmed answer.
func (p *Prompter) Request(botName string, kind InputKind) string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	label, ok := inputKindLabels[kind]
	if !ok {
		label = "input"
	}

	fmt.Fprintf(p.out, "<%s> Please enter %s: ", botName, label)
	line, err := p.in.ReadString('\n')
	if err != nil {
		LogBotWarning(botName, "Failed to read %s from console: %v", label, err)
		return ""
	}
	return strings.TrimSpace(line)
}
