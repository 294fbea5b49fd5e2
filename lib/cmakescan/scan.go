// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmakescan tokenizes CMake build scripts at the command
// invocation level. It does not evaluate the language: variables,
// conditions, and generator expressions pass through as opaque
// argument text. The output is the flat directive list a script
// audit or a post-patch assertion needs.
//
// Line comments are recognized; bracket comments and bracket
// arguments are not.
package cmakescan

import (
	"fmt"
	"os"
	"strings"
)

// Directive is one command invocation: name, arguments, and the
// 1-based line the name appears on.
type Directive struct {
	Name string
	Args []string
	Line int
}

// Script is a scanned build script.
type Script struct {
	Directives []Directive
}

// ScanFile reads and scans a script from disk.
func ScanFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	script, err := Scan(data)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return script, nil
}

// Scan tokenizes a script into directives.
func Scan(data []byte) (*Script, error) {
	s := &scanner{data: data, line: 1}
	script := &Script{}

	for {
		s.skipSpaceAndComments()
		if s.eof() {
			return script, nil
		}

		nameLine := s.line
		name, ok := s.readIdentifier()
		if !ok {
			return nil, fmt.Errorf("line %d: expected a command name, found %q", s.line, s.peek())
		}
		s.skipSpaceAndComments()
		if s.eof() || s.peek() != '(' {
			return nil, fmt.Errorf("line %d: expected ( after %s", s.line, name)
		}
		s.advance()

		args, err := s.readArguments()
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", nameLine, name, err)
		}
		script.Directives = append(script.Directives, Directive{Name: name, Args: args, Line: nameLine})
	}
}

// Count returns the number of directives whose name matches exactly,
// case included.
func (s *Script) Count(name string) int {
	count := 0
	for _, directive := range s.Directives {
		if directive.Name == name {
			count++
		}
	}
	return count
}

// CountFold counts directives by name ignoring case, the way CMake
// itself resolves commands.
func (s *Script) CountFold(name string) int {
	count := 0
	for _, directive := range s.Directives {
		if strings.EqualFold(directive.Name, name) {
			count++
		}
	}
	return count
}

// Calls returns every directive whose name matches ignoring case, in
// script order.
func (s *Script) Calls(name string) []Directive {
	var calls []Directive
	for _, directive := range s.Directives {
		if strings.EqualFold(directive.Name, name) {
			calls = append(calls, directive)
		}
	}
	return calls
}

// Includes returns the first argument of every include() directive,
// in script order.
func (s *Script) Includes() []string {
	var modules []string
	for _, directive := range s.Directives {
		if strings.EqualFold(directive.Name, "include") && len(directive.Args) > 0 {
			modules = append(modules, directive.Args[0])
		}
	}
	return modules
}

// IncludeCount counts include() directives naming the given module.
// Module names are file names, so the comparison is case-sensitive.
func (s *Script) IncludeCount(module string) int {
	count := 0
	for _, included := range s.Includes() {
		if included == module {
			count++
		}
	}
	return count
}

type scanner struct {
	data []byte
	pos  int
	line int
}

func (s *scanner) eof() bool { return s.pos >= len(s.data) }

func (s *scanner) peek() byte { return s.data[s.pos] }

func (s *scanner) advance() byte {
	c := s.data[s.pos]
	s.pos++
	if c == '\n' {
		s.line++
	}
	return c
}

func (s *scanner) skipSpaceAndComments() {
	for !s.eof() {
		switch s.peek() {
		case ' ', '\t', '\r', '\n':
			s.advance()
		case '#':
			for !s.eof() && s.peek() != '\n' {
				s.advance()
			}
		default:
			return
		}
	}
}

func (s *scanner) readIdentifier() (string, bool) {
	start := s.pos
	for !s.eof() && isIdentifierByte(s.peek()) {
		s.advance()
	}
	if s.pos == start {
		return "", false
	}
	return string(s.data[start:s.pos]), true
}

func isIdentifierByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// readArguments consumes up to and including the closing paren of an
// argument list. Nested paren groups become single arguments with
// their parens kept, so if(NOT (A AND B)) scans as two arguments.
func (s *scanner) readArguments() ([]string, error) {
	args := []string{}
	for {
		s.skipSpaceAndComments()
		if s.eof() {
			return nil, fmt.Errorf("unterminated argument list")
		}
		switch s.peek() {
		case ')':
			s.advance()
			return args, nil
		case '(':
			group, err := s.readParenGroup()
			if err != nil {
				return nil, err
			}
			args = append(args, group)
		case '"':
			s.advance()
			quoted, err := s.readQuoted()
			if err != nil {
				return nil, err
			}
			args = append(args, quoted)
		default:
			args = append(args, s.readUnquoted())
		}
	}
}

func (s *scanner) readParenGroup() (string, error) {
	start := s.pos
	depth := 0
	for !s.eof() {
		switch s.advance() {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return string(s.data[start:s.pos]), nil
			}
		case '"':
			if _, err := s.readQuoted(); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("unbalanced parentheses")
}

// readQuoted consumes a quoted argument starting after the opening
// quote and returns its content with escapes left intact. Quoted
// arguments may span lines.
func (s *scanner) readQuoted() (string, error) {
	start := s.pos
	for !s.eof() {
		switch s.advance() {
		case '\\':
			if !s.eof() {
				s.advance()
			}
		case '"':
			return string(s.data[start : s.pos-1]), nil
		}
	}
	return "", fmt.Errorf("unterminated quoted argument")
}

func (s *scanner) readUnquoted() string {
	start := s.pos
	for !s.eof() {
		switch s.peek() {
		case ' ', '\t', '\r', '\n', '(', ')', '"', '#':
			return string(s.data[start:s.pos])
		}
		s.advance()
	}
	return string(s.data[start:s.pos])
}
