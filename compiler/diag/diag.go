package diag

import (
	"fmt"
	"strings"

	"tlog.app/go/loc"
)

type (
	Pos struct {
		Line int
		Col  int
	}

	Entry struct {
		Msg      string
		Pos      Pos
		Expected string
		Got      string

		PC loc.PC // reporter
	}

	// Stream is an append-only sink of compile diagnostics.
	// Phases push into it and the driver checks Len between phases.
	Stream struct {
		entries []Entry
	}

	List []Entry
)

func New() *Stream {
	return &Stream{}
}

func (s *Stream) Push(msg string, pos Pos, expected, got string) {
	s.entries = append(s.entries, Entry{
		Msg:      msg,
		Pos:      pos,
		Expected: expected,
		Got:      got,
		PC:       loc.Caller(1),
	})
}

func (s *Stream) Pushf(pos Pos, format string, args ...any) {
	s.entries = append(s.entries, Entry{
		Msg: fmt.Sprintf(format, args...),
		Pos: pos,
		PC:  loc.Caller(1),
	})
}

func (s *Stream) Len() int {
	return len(s.entries)
}

func (s *Stream) Entries() []Entry {
	return s.entries
}

func (s *Stream) Reset() {
	s.entries = s.entries[:0]
}

// Err returns nil if nothing was reported.
func (s *Stream) Err() error {
	if len(s.entries) == 0 {
		return nil
	}

	return List(append([]Entry{}, s.entries...))
}

func (s *Stream) String() string {
	return List(s.entries).String()
}

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].String()
	}

	return fmt.Sprintf("%v (and %d more errors)", l[0], len(l)-1)
}

func (l List) String() string {
	var b strings.Builder

	for _, e := range l {
		b.WriteString("error: ")
		b.WriteString(e.String())
		b.WriteByte('\n')
	}

	return b.String()
}

func (e Entry) String() string {
	var b strings.Builder

	if e.Pos != (Pos{}) {
		fmt.Fprintf(&b, "%v: ", e.Pos)
	}

	b.WriteString(e.Msg)

	if e.Expected != "" || e.Got != "" {
		fmt.Fprintf(&b, " (expected %s, got %s)", e.Expected, e.Got)
	}

	return b.String()
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}
