// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux renders democtl output and reads the server's event streams.
//
// Output adapts to the personality level: styled with lipgloss on a
// terminal, tab-separated when piped. Streams are parsed from SSE and
// their hash chains verified.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// =============================================================================
// Colors and Styles
// =============================================================================

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes command output at a fixed personality level. Results go to
// Out; warnings and errors in machine mode go to Err.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// NewPrinter returns a Printer on stdout and stderr at the current
// process-wide level.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Level: GetPersonalityLevel()}
}

func (p *Printer) machine() bool { return p.Level == PersonalityMachine }

func (p *Printer) styled() bool {
	return p.Level == PersonalityFull || p.Level == PersonalityStandard
}

// Title prints a heading. Machine output omits it.
func (p *Printer) Title(text string) {
	if p.machine() {
		return
	}
	if p.styled() {
		text = Styles.Title.Render(text)
	}
	fmt.Fprintln(p.Out, text)
}

// Success prints a confirmation line.
func (p *Printer) Success(text string) {
	switch {
	case p.machine():
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case p.styled():
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess, text)
	}
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	switch {
	case p.machine():
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case p.styled():
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning, text)
	}
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	switch {
	case p.machine():
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case p.styled():
		fmt.Fprintf(p.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconError, text)
	}
}

// Box prints a titled block. Only the full level draws the border.
func (p *Printer) Box(title, content string) {
	switch {
	case p.machine():
		fmt.Fprintf(p.Out, "%s: %s\n", title, content)
	case p.Level == PersonalityFull:
		fmt.Fprintln(p.Out, Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
	default:
		fmt.Fprintf(p.Out, "%s\n%s\n", title, content)
	}
}

// KeyValues prints aligned key/value pairs given as alternating strings.
func (p *Printer) KeyValues(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, value := pairs[i], pairs[i+1]
		switch {
		case p.machine():
			fmt.Fprintf(p.Out, "%s\t%s\n", key, value)
		case p.styled():
			fmt.Fprintf(p.Out, "%s  %s\n", Styles.Muted.Render(fmt.Sprintf("%-*s", width, key)), value)
		default:
			fmt.Fprintf(p.Out, "%-*s  %s\n", width, key, value)
		}
	}
}

// Table prints rows under headers. Machine output is tab-separated with a
// header line; the full level draws a rounded border.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.machine() {
		fmt.Fprintln(p.Out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.Out, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().Headers(headers...).Rows(rows...)
	if p.Level == PersonalityFull {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep))
	} else {
		t = t.Border(lipgloss.HiddenBorder())
	}
	styled := p.styled()
	t = t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow && styled {
			return Styles.Header
		}
		return Styles.Cell
	})
	fmt.Fprintln(p.Out, t.Render())
}
