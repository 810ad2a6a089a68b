// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/bissmon/pkg/link"
	"github.com/Thermoquad/bissmon/pkg/transport"
)

// Exit codes for scripted commands
const (
	exitOK         = 0
	exitTimeout    = 1
	exitConnection = 2
)

var (
	errNoPrimary   = errors.New("no primary port: use --primary or primary.port")
	errNoSecondary = errors.New("no secondary port: use --secondary or secondary.port")
	errNoPorts     = errors.New("no ports: use --primary and/or --secondary")
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BISSMON_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newDialer builds the transport dialer, prompting for a password only when
// a configured port is a WebSocket URL and a username is set.
func newDialer() (transport.Dialer, error) {
	d := transport.Dialer{
		Username:      settings.WebSocket.Username,
		SkipSSLVerify: settings.WebSocket.SkipSSLVerify,
	}

	usesWebSocket := transport.IsWebSocketURL(settings.Primary.Port) ||
		transport.IsWebSocketURL(settings.Secondary.Port)
	if d.Username != "" && usesWebSocket {
		password, err := GetPassword()
		if err != nil {
			return d, err
		}
		d.Password = password
	}
	return d, nil
}

func linkOptions(d transport.Dialer, m *link.Metrics) []link.Option {
	opts := []link.Option{
		link.WithOpener(d.Open),
		link.WithLogger(logger),
	}
	if m != nil {
		opts = append(opts, link.WithMetrics(m))
	}
	return opts
}

// openPrimary creates and connects the primary link
func openPrimary(d transport.Dialer, m *link.Metrics) (*link.PrimaryLink, error) {
	if settings.Primary.Port == "" {
		return nil, errNoPrimary
	}
	p := link.NewPrimary(settings.Primary.PrimaryConfig, linkOptions(d, m)...)
	if !p.Connect(settings.Primary.Port, settings.Primary.BaudRate) {
		return nil, fmt.Errorf("failed to connect primary %s: %w", settings.Primary.Port, p.LastError())
	}
	return p, nil
}

// openSecondary creates and connects the secondary link
func openSecondary(d transport.Dialer, m *link.Metrics) (*link.SecondaryLink, error) {
	if settings.Secondary.Port == "" {
		return nil, errNoSecondary
	}
	s := link.NewSecondary(settings.Secondary.SecondaryConfig, linkOptions(d, m)...)
	if !s.Connect(settings.Secondary.Port, settings.Secondary.BaudRate) {
		return nil, fmt.Errorf("failed to connect secondary %s: %w", settings.Secondary.Port, s.LastError())
	}
	return s, nil
}

// links holds whichever links are configured; either may be nil
type links struct {
	primary   *link.PrimaryLink
	secondary *link.SecondaryLink
}

// openLinks connects every configured link. At least one port is required.
func openLinks(m *link.Metrics) (*links, error) {
	if settings.Primary.Port == "" && settings.Secondary.Port == "" {
		return nil, errNoPorts
	}

	d, err := newDialer()
	if err != nil {
		return nil, err
	}

	l := &links{}
	if settings.Primary.Port != "" {
		if l.primary, err = openPrimary(d, m); err != nil {
			return nil, err
		}
	}
	if settings.Secondary.Port != "" {
		if l.secondary, err = openSecondary(d, m); err != nil {
			l.close()
			return nil, err
		}
	}
	return l, nil
}

func (l *links) close() {
	if l.primary != nil {
		l.primary.Disconnect()
	}
	if l.secondary != nil {
		l.secondary.Disconnect()
	}
}

// describe returns the connection summary printed in command headers
func (l *links) describe() []string {
	var out []string
	if l.primary != nil {
		out = append(out, "Primary:   "+transport.Describe(settings.Primary.Port, settings.Primary.BaudRate))
	}
	if l.secondary != nil {
		out = append(out, "Secondary: "+transport.Describe(settings.Secondary.Port, settings.Secondary.BaudRate))
	}
	return out
}
